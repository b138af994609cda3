package xcommon

import (
	"runtime"
	"time"
)

// 忙等 + 让出调度, 直到cond成立
// 用于极短的等待窗口(监视标志/处理中计数), 不使用阻塞原语
func SpinUntil(cond func() bool) {
	for !cond() {
		runtime.Gosched()
	}
}

// 同SpinUntil, 每次让出后休眠interval, 用于可能较长的等待
func SpinSleepUntil(cond func() bool, interval time.Duration) {
	for !cond() {
		runtime.Gosched()
		time.Sleep(interval)
	}
}

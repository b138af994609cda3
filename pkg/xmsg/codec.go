package xmsg

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
)

var HeaderSizeof = binary.Size(Header{})

// 单帧上限, 超过视为非法数据
const MaxFrameLen = 4 << 20

type MsgArgs struct {
	State   interface{}
	Header  *Header
	Payload []byte
}

// 流式数据解析: 返回已消费字节数, 0表示数据不足
type OnHandlerOnce func(ctx context.Context, state interface{}, msg []byte) (int, error)

// 解析数据包
func ParseMsgWarp(fn func(ctx context.Context, arg MsgArgs) error) OnHandlerOnce {
	return func(ctx context.Context, state interface{}, msg []byte) (int, error) {
		if len(msg) < HeaderSizeof {
			return 0, nil
		}
		header := &Header{}
		if err := binary.Read(bytes.NewReader(msg[0:HeaderSizeof]), binary.LittleEndian, header); err != nil {
			return 0, err
		}
		if header.Len < 0 || header.Len > MaxFrameLen {
			return 0, errors.Errorf("frame len[%d] invalid", header.Len)
		}
		if len(msg) < HeaderSizeof+int(header.Len) {
			return 0, nil
		}
		payload := msg[HeaderSizeof : HeaderSizeof+int(header.Len)]
		err := fn(ctx, MsgArgs{State: state, Header: header, Payload: payload})
		return HeaderSizeof + int(header.Len), err
	}
}

type PackMsgArgs struct {
	Seq     int32
	Type    int32
	Flag    int32
	Payload []byte
}

// 打包数据
func PackMsg(ctx context.Context, arg PackMsgArgs) ([]byte, error) {
	if len(arg.Payload) > MaxFrameLen {
		return nil, errors.Errorf("payload len[%d] overflow", len(arg.Payload))
	}
	header := &Header{Seq: arg.Seq, Type: arg.Type, Flag: arg.Flag, Len: int32(len(arg.Payload))}
	ioWrite := bytes.NewBuffer(make([]byte, 0, HeaderSizeof+len(arg.Payload)))
	if err := binary.Write(ioWrite, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	ioWrite.Write(arg.Payload)
	return ioWrite.Bytes(), nil
}

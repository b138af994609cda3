package xgateway

import (
	"fmt"

	"mgmtbroker/pkg/xmsg"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 帧payload字段
const (
	fieldModule    = "module"
	fieldOp        = "op"
	fieldNamespace = "namespace"
	fieldClass     = "class"
	fieldMethod    = "method"
	fieldArgs      = "args"

	fieldCode    = "code"
	fieldRequest = "request"
	fieldPayload = "payload"
	fieldError   = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// 请求: Header.Type为消息类型, payload为structpb.Struct
func EncodeRequest(req xmsg.Request) (int32, []byte, error) {
	fields := map[string]interface{}{}
	if mreq, ok := req.(*xmsg.ModuleRequest); ok {
		fields[fieldModule] = mreq.Module
		fields[fieldOp] = mreq.Op.String()
		fields[fieldNamespace] = mreq.Namespace
		fields[fieldClass] = mreq.Class
		fields[fieldMethod] = mreq.Method
		if len(mreq.Args) > 0 {
			fields[fieldArgs] = mreq.Args
		}
	} else if !xmsg.IsBroadcast(req.MsgType()) {
		return 0, nil, errors.Wrapf(ErrUnsupportedType, "type[%v]", req.MsgType())
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, nil, errors.Wrap(err, "encode request")
	}
	payload, err := proto.Marshal(s)
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal request")
	}
	return int32(req.MsgType()), payload, nil
}

func DecodeRequest(header *xmsg.Header, payload []byte) (xmsg.Request, error) {
	t := xmsg.MsgType(header.Type)
	switch t {
	case xmsg.TypeStopAllModules:
		return xmsg.NewStopAllModules(), nil
	case xmsg.TypeSubscriptionInitComplete:
		return xmsg.NewSubscriptionInitComplete(), nil
	case xmsg.TypeModuleRequest:
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "type[%v]", t)
	}

	s := &structpb.Struct{}
	if err := proto.Unmarshal(payload, s); err != nil {
		return nil, errors.Wrap(err, "unmarshal request")
	}
	fields := s.GetFields()
	opName := fields[fieldOp].GetStringValue()
	op, ok := xmsg.ParseOperation(opName)
	if !ok {
		return nil, errors.Errorf("operation[%v] invalid", opName)
	}
	req := xmsg.NewModuleRequest(fields[fieldModule].GetStringValue(), op)
	req.Namespace = fields[fieldNamespace].GetStringValue()
	req.Class = fields[fieldClass].GetStringValue()
	req.Method = fields[fieldMethod].GetStringValue()
	if args := fields[fieldArgs].GetStructValue(); args != nil {
		req.Args = args.AsMap()
	}
	return req, nil
}

// 响应: Header.Flag为结果码
func EncodeReply(reply *xmsg.Reply) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldCode:    structpb.NewStringValue(reply.Code.String()),
		fieldRequest: structpb.NewStringValue(reply.Request.String()),
	}}
	if reply.Payload != nil {
		s.Fields[fieldPayload] = toValue(reply.Payload)
	}
	if reply.Err != nil {
		s.Fields[fieldError] = structpb.NewStringValue(reply.Err.Error())
	}
	payload, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal reply")
	}
	return payload, nil
}

func DecodeReply(header *xmsg.Header, payload []byte) (*xmsg.Reply, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(payload, s); err != nil {
		return nil, errors.Wrap(err, "unmarshal reply")
	}
	reply := &xmsg.Reply{Code: xmsg.ResultCode(header.Flag), Request: xmsg.MsgType(header.Type)}
	if v, ok := s.Fields[fieldPayload]; ok {
		reply.Payload = v.AsInterface()
	}
	if v, ok := s.Fields[fieldError]; ok {
		reply.Err = errors.New(v.GetStringValue())
	}
	return reply, nil
}

// 非json类型退化为字符串
func toValue(v interface{}) *structpb.Value {
	switch x := v.(type) {
	case []string:
		list := make([]interface{}, 0, len(x))
		for _, s := range x {
			list = append(list, s)
		}
		v = list
	case map[string]string:
		m := make(map[string]interface{}, len(x))
		for k, s := range x {
			m[k] = s
		}
		v = m
	}
	value, err := structpb.NewValue(v)
	if err != nil {
		return structpb.NewStringValue(fmt.Sprint(v))
	}
	return value
}

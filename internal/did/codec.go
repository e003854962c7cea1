package did

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"station-core/internal/errs"
)

// Marshal 按 proto3 规则编码: 空字符串不输出，Signature 非 nil 时总是输出
func Marshal(d *Document) []byte {
	var b []byte
	b = appendString(b, 1, d.ID)
	b = appendString(b, 2, d.Controller)
	for _, vm := range d.VerificationMethods {
		b = appendMessage(b, 3, marshalVerificationMethod(vm))
	}
	if d.Signature != nil {
		b = appendMessage(b, 4, marshalSignature(d.Signature))
	}
	for _, s := range d.Services {
		b = appendMessage(b, 5, marshalService(s))
	}
	for _, a := range d.Authentications {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, a)
	}
	return b
}

// Unmarshal 解码文档；未知字段跳过，结构错误或缺少 id 返回 ErrMalformedDocument
func Unmarshal(b []byte) (*Document, error) {
	d := &Document{}
	err := walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			return setString(&d.ID, v)
		case 2:
			return setString(&d.Controller, v)
		case 3:
			vm, err := unmarshalVerificationMethod(v)
			if err != nil {
				return err
			}
			d.VerificationMethods = append(d.VerificationMethods, vm)
		case 4:
			sig, err := unmarshalSignature(v)
			if err != nil {
				return err
			}
			d.Signature = sig
		case 5:
			s, err := unmarshalService(v)
			if err != nil {
				return err
			}
			d.Services = append(d.Services, s)
		case 6:
			var a string
			if err := setString(&a, v); err != nil {
				return err
			}
			d.Authentications = append(d.Authentications, a)
		}
		return nil
	}, 1, 2, 3, 4, 5, 6)
	if err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, errs.Malformedf("document has no id")
	}
	return d, nil
}

func marshalVerificationMethod(vm VerificationMethod) []byte {
	var b []byte
	b = appendString(b, 1, vm.ID)
	b = appendString(b, 2, vm.Type)
	b = appendString(b, 3, vm.Controller)
	b = appendString(b, 4, vm.PublicKeyMultibase)
	return b
}

func unmarshalVerificationMethod(b []byte) (VerificationMethod, error) {
	var vm VerificationMethod
	err := walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			return setString(&vm.ID, v)
		case 2:
			return setString(&vm.Type, v)
		case 3:
			return setString(&vm.Controller, v)
		case 4:
			return setString(&vm.PublicKeyMultibase, v)
		}
		return nil
	}, 1, 2, 3, 4)
	return vm, err
}

func marshalSignature(s *Signature) []byte {
	var b []byte
	b = appendString(b, 1, s.Type)
	b = appendString(b, 2, s.Issuer)
	b = appendString(b, 3, s.Hash)
	return b
}

func unmarshalSignature(b []byte) (*Signature, error) {
	s := &Signature{}
	err := walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			return setString(&s.Type, v)
		case 2:
			return setString(&s.Issuer, v)
		case 3:
			return setString(&s.Hash, v)
		}
		return nil
	}, 1, 2, 3)
	return s, err
}

func marshalService(s Service) []byte {
	var b []byte
	b = appendString(b, 1, s.ID)
	b = appendString(b, 2, s.Type)
	b = appendString(b, 3, s.ServiceEndpoint)
	b = appendString(b, 4, s.Data)
	return b
}

func unmarshalService(b []byte) (Service, error) {
	var s Service
	err := walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			return setString(&s.ID, v)
		case 2:
			return setString(&s.Type, v)
		case 3:
			return setString(&s.ServiceEndpoint, v)
		case 4:
			return setString(&s.Data, v)
		}
		return nil
	}, 1, 2, 3, 4)
	return s, err
}

// walk 遍历一条消息。known 中的字段必须是 length-delimited，否则视为结构错误；
// 其余字段按 wire type 跳过。
func walk(b []byte, fn func(num protowire.Number, v []byte) error, known ...protowire.Number) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errs.Malformedf("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		isKnown := false
		for _, k := range known {
			if k == num {
				isKnown = true
				break
			}
		}

		if !isKnown {
			skip := protowire.ConsumeFieldValue(num, typ, b)
			if skip < 0 {
				return errs.Malformedf("field %d: %v", num, protowire.ParseError(skip))
			}
			b = b[skip:]
			continue
		}

		if typ != protowire.BytesType {
			return errs.Malformedf("field %d: unexpected wire type %d", num, typ)
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return errs.Malformedf("field %d: %v", num, protowire.ParseError(m))
		}
		b = b[m:]

		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func setString(dst *string, v []byte) error {
	if !utf8.Valid(v) {
		return errs.Malformedf("string field is not valid utf-8")
	}
	*dst = string(v)
	return nil
}

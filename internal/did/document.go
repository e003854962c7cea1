// Package did 编解码身份文档 (protobuf wire 格式) 并处理 DID 标识符。
//
// 消息结构:
//
//	Document           { id=1; controller=2; verificationMethods=3 (repeated); signature=4; services=5 (repeated); authentications=6 (repeated string) }
//	VerificationMethod { id=1; type=2; controller=3; publicKeyMultibase=4 }
//	Signature          { type=1; issuer=2; hash=3 }
//	Service            { id=1; type=2; serviceEndpoint=3; data=4 }
package did

import (
	"fmt"
	"strings"

	"station-core/internal/errs"
)

const (
	DefaultMethod = "peaq"

	SignatureTypeECDSA = "ECDSA"

	ServiceEmailSignature = "emailSignature"
	ServiceOwner          = "owner"
)

type Document struct {
	ID                  string               `json:"id"`
	Controller          string               `json:"controller"`
	VerificationMethods []VerificationMethod `json:"verificationMethods,omitempty"`
	Signature           *Signature           `json:"signature,omitempty"`
	Services            []Service            `json:"services,omitempty"`
	Authentications     []string             `json:"authentications,omitempty"`
}

type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// Signature 文档签名块; Hash 为对 Document.ID 的 personal-message 签名 (0x hex)
type Signature struct {
	Type   string `json:"type"`
	Issuer string `json:"issuer"`
	Hash   string `json:"hash"`
}

type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint,omitempty"`
	Data            string `json:"data,omitempty"`
}

// FindService 按 type 查找服务
func (d *Document) FindService(typ string) (Service, bool) {
	for _, s := range d.Services {
		if s.Type == typ {
			return s, true
		}
	}
	return Service{}, false
}

// FormatID did:<method>:<address>
func FormatID(method, address string) string {
	if method == "" {
		method = DefaultMethod
	}
	return "did:" + method + ":" + address
}

// Identifier 解析后的 DID
type Identifier struct {
	Method   string
	Address  string
	Path     string // "/" 之后的部分
	Fragment string // "#" 之后的部分
}

// ParseID 解析 did:<method>:<address>[/<path>][#<fragment>]
func ParseID(id string) (Identifier, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return Identifier{}, errs.Malformedf("invalid did %q", id)
	}

	out := Identifier{Method: parts[1]}
	rest := parts[2]
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		out.Fragment = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		out.Path = rest[i+1:]
		rest = rest[:i]
	}
	if rest == "" {
		return Identifier{}, errs.Malformedf("did %q has no address", id)
	}
	out.Address = rest
	return out, nil
}

// AttributeName 链上属性名 did:<method>:<address>#<company>
func AttributeName(method, address, company string) string {
	return FormatID(method, address) + "#" + company
}

// Reference 对外登记的文档引用 did:<method>:<address>/<name>
func Reference(method, address, name string) string {
	return FormatID(method, address) + "/" + name
}

// ParseReference 拆分 did:<method>:<address>/<name>，name 可以包含 ':' 与 '#'
func ParseReference(ref string) (Identifier, string, error) {
	i := strings.IndexByte(ref, '/')
	if i < 0 || i == len(ref)-1 {
		return Identifier{}, "", errs.Malformedf("reference %q has no name", ref)
	}
	id, err := ParseID(ref[:i])
	if err != nil {
		return Identifier{}, "", err
	}
	return id, ref[i+1:], nil
}

// NewMachineDocument 为智能账户组装文档: id 与 controller 都指向该账户
func NewMachineDocument(method, machine, owner, emailSignature string) *Document {
	id := FormatID(method, machine)
	doc := &Document{
		ID:         id,
		Controller: id,
	}
	if emailSignature != "" {
		doc.Services = append(doc.Services, Service{ID: "#" + ServiceEmailSignature, Type: ServiceEmailSignature, Data: emailSignature})
	}
	if owner != "" {
		doc.Services = append(doc.Services, Service{ID: "#" + ServiceOwner, Type: ServiceOwner, Data: owner})
	}
	return doc
}

func (d *Document) String() string {
	return fmt.Sprintf("Document{id=%s controller=%s services=%d signed=%t}", d.ID, d.Controller, len(d.Services), d.Signature != nil)
}

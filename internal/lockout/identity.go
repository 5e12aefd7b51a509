package lockout

import (
	"strconv"

	"github.com/nmkhang/authcore/internal/common"
)

type identityKind string

const (
	kindPrincipal identityKind = "p"
	kindIP        identityKind = "ip"
)

// Identity addresses one failure counter: a principal or a source IP.
type Identity struct {
	kind  identityKind
	value string
}

func PrincipalIdentity(id uint) Identity {
	return Identity{kind: kindPrincipal, value: strconv.FormatUint(uint64(id), 10)}
}

func IPIdentity(addr string) Identity {
	return Identity{kind: kindIP, value: addr}
}

func (i Identity) IsPrincipal() bool {
	return i.kind == kindPrincipal
}

func (i Identity) PrincipalID() uint {
	if !i.IsPrincipal() {
		return 0
	}
	id, _ := strconv.ParseUint(i.value, 10, 64)
	return uint(id)
}

func (i Identity) Scope() string {
	if i.kind == kindPrincipal {
		return "principal"
	}
	return "ip"
}

func (i Identity) key() string {
	return string(i.kind) + ":" + common.SanitizeKeySegment(i.value)
}

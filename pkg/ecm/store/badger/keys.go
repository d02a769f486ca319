package badger

import (
	"fmt"

	"github.com/google/uuid"
)

// Key schema:
//
//	n:<node id>                    -> JSON nodeRecord
//	p:<path>                       -> node id
//	x:<view id>\x00<node id>       -> empty, view id index
//	v:<node id>:<seq, 20 digits>   -> JSON ecm.VersionRecord
//	t:<type name>                  -> JSON ecm.TypeDefinition
//	s:version                      -> badger sequence for version ordering
const (
	prefixNode    = "n:"
	prefixPath    = "p:"
	prefixViewID  = "x:"
	prefixVersion = "v:"
	prefixType    = "t:"

	keyVersionSeq = "s:version"
)

func keyNode(id uuid.UUID) []byte {
	return []byte(prefixNode + id.String())
}

func keyPath(path string) []byte {
	return []byte(prefixPath + path)
}

func keyViewIDPrefix(viewID string) []byte {
	return []byte(prefixViewID + viewID + "\x00")
}

func keyViewID(viewID string, id uuid.UUID) []byte {
	return append(keyViewIDPrefix(viewID), id.String()...)
}

func keyVersionPrefix(id uuid.UUID) []byte {
	return []byte(prefixVersion + id.String() + ":")
}

func keyVersion(id uuid.UUID, seq int64) []byte {
	return append(keyVersionPrefix(id), fmt.Sprintf("%020d", seq)...)
}

func keyType(name string) []byte {
	return []byte(prefixType + name)
}

package ledger

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"smokehouse/models"
)

// auditor seals lot events with a keyed BLAKE2b-256 digest so tampering with the
// stored audit trail is detectable during reconciliation.
type auditor struct {
	key []byte
}

func newAuditor(key []byte) (auditor, error) {
	if len(key) > blake2b.Size {
		return auditor{}, fmt.Errorf("ledger: audit key longer than %d bytes", blake2b.Size)
	}
	return auditor{key: key}, nil
}

func (a auditor) hasher() hash.Hash {
	h, err := blake2b.New256(a.key)
	if err != nil {
		// key length is checked in newAuditor
		panic(err)
	}
	return h
}

func (a auditor) digest(e *models.LotEvent) string {
	h := a.hasher()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(e.ID)
	write(e.LotID)
	write(e.Type)
	write(strconv.FormatFloat(e.Delta, 'g', -1, 64))
	write(strconv.FormatFloat(e.ResultingBalance, 'g', -1, 64))
	write(e.Unit)
	write(deref(e.BatchID))
	write(deref(e.AllocationID))
	write(e.Reason)
	write(strconv.FormatInt(e.CreatedAt.UnixMicro(), 10))
	return hex.EncodeToString(h.Sum(nil))
}

func (a auditor) seal(e *models.LotEvent) {
	e.Digest = a.digest(e)
}

func (a auditor) verify(e *models.LotEvent) bool {
	return subtle.ConstantTimeCompare([]byte(e.Digest), []byte(a.digest(e))) == 1
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

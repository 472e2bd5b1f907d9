package fielddef

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/svdb-project/svdb/types"
)

type FieldDefinition interface {
	FieldPtr() interface{}
	Marshall() (interface{}, error)
	Unmarshall() error
}

type FieldDef struct {
	F interface{}
}

var _ FieldDefinition = (*FieldDef)(nil)

func (fd *FieldDef) FieldPtr() interface{} {
	return fd.F
}

func (fd *FieldDef) Marshall() (interface{}, error) {
	return fd.F, nil
}

func (fd *FieldDef) Unmarshall() error {
	return nil
}

type CidFieldDef struct {
	cidStr sql.NullString
	F      *cid.Cid
}

func (fd *CidFieldDef) FieldPtr() interface{} {
	return &fd.cidStr
}

func (fd *CidFieldDef) Marshall() (interface{}, error) {
	if fd.F == nil {
		return nil, nil
	}
	return fd.F.String(), nil
}

func (fd *CidFieldDef) Unmarshall() error {
	if !fd.cidStr.Valid {
		return nil
	}

	c, err := cid.Parse(fd.cidStr.String)
	if err != nil {
		return fmt.Errorf("parsing CID from string '%s': %w", fd.cidStr.String, err)
	}

	*fd.F = c
	return nil
}

type BigIntFieldDef struct {
	Marshalled sql.NullString
	F          *big.Int
}

func (fd *BigIntFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *BigIntFieldDef) Marshall() (interface{}, error) {
	if fd.F == nil {
		return nil, nil
	}
	return fd.F.String(), nil
}

func (fd *BigIntFieldDef) Unmarshall() error {
	if !fd.Marshalled.Valid {
		*fd.F = big.NewInt(0)
		return nil
	}

	i := big.NewInt(0)
	i.SetString(fd.Marshalled.String, 0)
	*fd.F = i
	return nil
}

type AddrFieldDef struct {
	Marshalled string
	F          *address.Address
}

func (fd *AddrFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *AddrFieldDef) Marshall() (interface{}, error) {
	if fd.F.Empty() {
		return "", nil
	}
	return fd.F.String(), nil
}

func (fd *AddrFieldDef) Unmarshall() error {
	if fd.Marshalled == "" {
		*fd.F = address.Undef
		return nil
	}

	addr, err := address.NewFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	*fd.F = addr
	return nil
}

// Hash32FieldDef stores a 32 byte digest as a hex string so it stays
// readable in sqlite tooling and usable in WHERE clauses.
type Hash32FieldDef struct {
	Marshalled string
	F          *[32]byte
}

func (fd *Hash32FieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *Hash32FieldDef) Marshall() (interface{}, error) {
	return hex.EncodeToString(fd.F[:]), nil
}

func (fd *Hash32FieldDef) Unmarshall() error {
	bz, err := hex.DecodeString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing digest from string '%s': %w", fd.Marshalled, err)
	}
	if len(bz) != 32 {
		return fmt.Errorf("digest '%s' is %d bytes, expected 32", fd.Marshalled, len(bz))
	}

	copy(fd.F[:], bz)
	return nil
}

type DealStateFieldDef struct {
	Marshalled string
	F          *types.DealState
}

func (fd *DealStateFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *DealStateFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *DealStateFieldDef) Unmarshall() error {
	st, err := types.DealStateFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing deal state from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = st
	return nil
}

type ChallengeStateFieldDef struct {
	Marshalled string
	F          *types.ChallengeState
}

func (fd *ChallengeStateFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *ChallengeStateFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *ChallengeStateFieldDef) Unmarshall() error {
	st, err := types.ChallengeStateFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing challenge state from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = st
	return nil
}

type ChallengeTypeFieldDef struct {
	Marshalled string
	F          *types.ChallengeType
}

func (fd *ChallengeTypeFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *ChallengeTypeFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *ChallengeTypeFieldDef) Unmarshall() error {
	ct, err := types.ChallengeTypeFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing challenge type from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = ct
	return nil
}

type SealStateFieldDef struct {
	Marshalled string
	F          *types.SealState
}

func (fd *SealStateFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *SealStateFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *SealStateFieldDef) Unmarshall() error {
	st, err := types.SealStateFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing seal state from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = st
	return nil
}

type SlaStateFieldDef struct {
	Marshalled string
	F          *types.SlaState
}

func (fd *SlaStateFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *SlaStateFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *SlaStateFieldDef) Unmarshall() error {
	st, err := types.SlaStateFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing sla state from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = st
	return nil
}

type SlaTierFieldDef struct {
	Marshalled string
	F          *types.SlaTier
}

func (fd *SlaTierFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *SlaTierFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *SlaTierFieldDef) Unmarshall() error {
	t, err := types.SlaTierFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing sla tier from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = t
	return nil
}

type RepairStateFieldDef struct {
	Marshalled string
	F          *types.RepairState
}

func (fd *RepairStateFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *RepairStateFieldDef) Marshall() (interface{}, error) {
	return fd.F.String(), nil
}

func (fd *RepairStateFieldDef) Unmarshall() error {
	st, err := types.RepairStateFromString(fd.Marshalled)
	if err != nil {
		return fmt.Errorf("parsing repair state from string '%s': %w", fd.Marshalled, err)
	}

	*fd.F = st
	return nil
}

// SamplesFieldDef stores a latency sample window as a JSON array.
type SamplesFieldDef struct {
	Marshalled string
	F          *[]uint64
}

func (fd *SamplesFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *SamplesFieldDef) Marshall() (interface{}, error) {
	bz, err := json.Marshal(*fd.F)
	if err != nil {
		return nil, fmt.Errorf("marshalling latency samples: %w", err)
	}
	return string(bz), nil
}

func (fd *SamplesFieldDef) Unmarshall() error {
	if fd.Marshalled == "" {
		return nil
	}

	var samples []uint64
	if err := json.Unmarshal([]byte(fd.Marshalled), &samples); err != nil {
		return fmt.Errorf("unmarshalling latency samples '%s': %w", fd.Marshalled, err)
	}

	*fd.F = samples
	return nil
}

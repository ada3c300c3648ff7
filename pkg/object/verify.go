package object

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	Objects int
	ByType  map[ObjectType]int
}

// Verify re-reads every loose object and checks that its content hashes to
// its name. Every corrupt object is reported; the returned error is a
// *multierror.Error when more than one fails.
func (s *Store) Verify() (*VerifySummary, error) {
	hashes, err := s.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	report := &VerifySummary{ByType: make(map[ObjectType]int)}
	var result *multierror.Error
	for _, h := range hashes {
		objType, content, err := s.Read(h)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("verify %s: %w", h, err))
			continue
		}
		if actual := HashObject(objType, content); actual != h {
			result = multierror.Append(result, fmt.Errorf("verify %s: hash mismatch (computed %s)", h, actual))
			continue
		}
		report.Objects++
		report.ByType[objType]++
	}
	return report, result.ErrorOrNil()
}

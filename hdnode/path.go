package hdnode

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a parsed derivation path. The master node is implicit, so "m"
// parses to an empty Path.
type Path []uint32

// String renders the path using the ' suffix for hardened indices.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		if idx >= HardenedKeyStart {
			fmt.Fprintf(&b, "/%d'", idx-HardenedKeyStart)
			continue
		}
		fmt.Fprintf(&b, "/%d", idx)
	}

	return b.String()
}

// ParsePath parses a path of the form m(/index'?)*.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if parts[0] != "m" {
		return nil, ErrPathNoMaster
	}

	path := make(Path, 0, len(parts)-1)
	for _, part := range parts[1:] {
		if part == "m" {
			return nil, ErrPathChildMaster
		}

		hardened := strings.HasSuffix(part, "'")
		digits := strings.TrimSuffix(part, "'")

		// ParseUint accepts a leading '+', which a path never has.
		if digits == "" || digits[0] < '0' || digits[0] > '9' {
			return nil, fmt.Errorf("%w: %q", ErrPathNodeNotNumber,
				part)
		}
		idx, err := strconv.ParseUint(digits, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrPathNodeNotNumber,
				part)
		}

		child := uint32(idx)
		if hardened {
			child += HardenedKeyStart
		}
		path = append(path, child)
	}

	return path, nil
}

// PrivateCKDFromPath derives the node at the given path below n using private
// derivation. n is only updated if every step succeeds.
func (n *HDNode) PrivateCKDFromPath(path string) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}

	return n.derivePath(p, (*HDNode).PrivateCKD)
}

// PublicCKDFromPath derives the node at the given path below n using public
// derivation. n is only updated if every step succeeds.
func (n *HDNode) PublicCKDFromPath(path string) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}

	return n.derivePath(p, (*HDNode).PublicCKD)
}

// DerivePath applies the private derivation steps of p to n. n is only
// updated if every step succeeds.
func (n *HDNode) DerivePath(p Path) error {
	return n.derivePath(p, (*HDNode).PrivateCKD)
}

func (n *HDNode) derivePath(p Path,
	step func(*HDNode, uint32) error) error {

	work := n.Clone()
	for i, idx := range p {
		if err := step(work, idx); err != nil {
			work.Zero()
			return fmt.Errorf("step %d of %v: %w", i, p, err)
		}
	}

	old := *n
	*n = *work
	work.Zero()
	old.Zero()

	return nil
}

package symbols

// Normalizer maps upstream trading-pair identifiers to the identifiers
// downstream consumers expect. Unmapped symbols pass through unchanged.
// The table is copied on construction and never mutated, so a Normalizer
// is safe for concurrent use without locking.
type Normalizer struct {
	table map[string]string
}

func NewNormalizer(mapping map[string]string) *Normalizer {
	table := make(map[string]string, len(mapping))
	for k, v := range mapping {
		table[k] = v
	}
	return &Normalizer{table: table}
}

func (n *Normalizer) Normalize(upstream string) string {
	if downstream, ok := n.table[upstream]; ok {
		return downstream
	}
	return upstream
}

// Upstream returns every upstream symbol that maps to downstream.
// More than one upstream pair may collapse onto the same downstream symbol.
func (n *Normalizer) Upstream(downstream string) []string {
	var out []string
	for k, v := range n.table {
		if v == downstream {
			out = append(out, k)
		}
	}
	return out
}

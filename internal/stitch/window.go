package stitch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/weft-db/weft/internal/include"
)

// applyWindow applies per-parent offset/limit to one parent's group. The
// result is never nil.
func applyWindow(rows []map[string]interface{}, opts include.Options) []map[string]interface{} {
	if len(rows) == 0 {
		return []map[string]interface{}{}
	}

	start := 0
	if opts.Offset != nil {
		start = *opts.Offset
	}
	if start >= len(rows) {
		return []map[string]interface{}{}
	}

	end := len(rows)
	if opts.Limit != nil && start+*opts.Limit < end {
		end = start + *opts.Limit
	}

	return rows[start:end]
}

// sortRows orders one parent's group in memory by a single column. Used for
// join-backed relations, where the target query cannot carry the per-parent
// ordering.
func sortRows(rows []map[string]interface{}, column string, order include.Order) {
	if len(rows) < 2 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		cmp := compareValues(rows[i][column], rows[j][column])
		if order == include.OrderDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// compareValues compares two scanned column values, returning -1, 0 or 1.
// Nils sort last regardless of direction handled by the caller's ordering.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return strings.Compare(va, vb)
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case va == vb:
				return 0
			case !va:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			switch {
			case va.Before(vb):
				return -1
			case va.After(vb):
				return 1
			default:
				return 0
			}
		}
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

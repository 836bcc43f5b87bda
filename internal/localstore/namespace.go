package localstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Domain separates independent timer domains that share one access code.
type Domain string

const (
	// DomainLocalization keys carry no domain prefix.
	DomainLocalization Domain = ""
	DomainReport       Domain = "report"
)

// ParseDomain maps a user-facing name to a Domain.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "localization", "localize":
		return DomainLocalization, nil
	case "report":
		return DomainReport, nil
	default:
		return "", fmt.Errorf("unknown domain %q (expected localization or report)", s)
	}
}

func (d Domain) String() string {
	if d == DomainLocalization {
		return "localization"
	}
	return string(d)
}

// Persisted field names.
const (
	FieldRunID            = "run_id"
	FieldCorrect          = "correct"
	FieldIncorrect        = "incorrect"
	FieldCases            = "cases"
	FieldSessionStart     = "session_start"
	FieldPaused           = "paused"
	FieldPauseStart       = "pause_start"
	FieldAccumulatedPause = "accumulated_pause_time"
	FieldImages           = "images"
	FieldTimerBase        = "timer_base_ms"
	FieldManualPause      = "manual_pause"
	FieldRecentCases      = "recent_cases"
	FieldRecentScores     = "recent_scores"
)

// resetFields are cleared when the server run changes.
var resetFields = []string{
	FieldCorrect,
	FieldIncorrect,
	FieldCases,
	FieldSessionStart,
	FieldPaused,
	FieldPauseStart,
	FieldAccumulatedPause,
	FieldImages,
	FieldTimerBase,
	FieldManualPause,
	FieldRecentCases,
	FieldRecentScores,
}

// Namespace scopes every key by domain and access code:
// "{domain}_{accessCode}_{field}", or "{accessCode}_{field}" for localization.
type Namespace struct {
	store      KeyedStore
	domain     Domain
	accessCode string
}

func NewNamespace(store KeyedStore, domain Domain, accessCode string) *Namespace {
	if accessCode == "" {
		accessCode = "anon"
	}
	return &Namespace{store: store, domain: domain, accessCode: accessCode}
}

func (n *Namespace) Domain() Domain     { return n.domain }
func (n *Namespace) AccessCode() string { return n.accessCode }

// Key returns the fully scoped key for field.
func (n *Namespace) Key(field string) string {
	if n.domain == DomainLocalization {
		return n.accessCode + "_" + field
	}
	return string(n.domain) + "_" + n.accessCode + "_" + field
}

func (n *Namespace) Has(field string) bool {
	_, ok := n.store.Get(n.Key(field))
	return ok
}

func (n *Namespace) String(field string) string {
	v, _ := n.store.Get(n.Key(field))
	return v
}

func (n *Namespace) SetString(field, value string) error {
	return n.store.Set(n.Key(field), value)
}

// Int reads a decimal integer. Missing or malformed values read as 0.
func (n *Namespace) Int(field string) int64 {
	v, ok := n.store.Get(n.Key(field))
	if !ok {
		return 0
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		// tolerate values written as floats, e.g. "1712000000000.0"
		f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int64(f)
	}
	return i
}

func (n *Namespace) SetInt(field string, value int64) error {
	return n.store.Set(n.Key(field), strconv.FormatInt(value, 10))
}

// Bool reads the literal "true"; anything else is false.
func (n *Namespace) Bool(field string) bool {
	v, _ := n.store.Get(n.Key(field))
	return v == "true"
}

func (n *Namespace) SetBool(field string, value bool) error {
	return n.store.Set(n.Key(field), strconv.FormatBool(value))
}

func (n *Namespace) Delete(field string) error {
	return n.store.Delete(n.Key(field))
}

// EnsureRun records runID and, when it differs from the stored run, clears every
// scoped field. It reports whether a reset happened. An empty runID is ignored.
func (n *Namespace) EnsureRun(runID string) (bool, error) {
	if runID == "" || n.String(FieldRunID) == runID {
		return false, nil
	}
	if err := n.SetString(FieldRunID, runID); err != nil {
		return false, err
	}
	for _, f := range resetFields {
		if err := n.Delete(f); err != nil {
			return true, fmt.Errorf("failed to reset namespace: %w", err)
		}
	}
	return true, nil
}

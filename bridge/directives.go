package bridge

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Directive comments: # @ferrite: key = "value"
// ---------------------------------------------------------------------------

var directivePattern = regexp.MustCompile(`#\s*@ferrite:\s*(\w+)\s*=\s*(.+)`)

// optionValues enumerates the closed set of directive keys and their
// accepted values. An empty map means the key takes free-form values.
var optionValues = map[string]map[string]bool{
	"optimization_level": {"conservative": true, "standard": true, "aggressive": true},
	"string_strategy":    {"always_owned": true, "zero_copy": true, "cow": true, "smart": true},
	"ownership":          {"owned": true, "borrowed": true, "shared": true, "smart": true},
	"bounds_checking":    {"runtime": true, "explicit": true, "disabled": true},
	"thread_safety":      {"none": true, "required": true},
	"fold":               {"on": true, "off": true},
	"dce":                {"on": true, "off": true},
	"cse":                {"on": true, "off": true},
	"inline":             {"on": true, "off": true},
	"inline_budget":      nil,
	"inline_depth":       nil,
}

// ParseDirectives parses raw directive-comment lines on top of a base
// configuration. Unknown keys or values produce InvalidAnnotation
// diagnostics and leave the base setting untouched; parsing never fails.
func ParseDirectives(lines []string, base *ir.Annotations, r *diag.Reporter) *ir.Annotations {
	ann := base.Clone()
	for _, line := range lines {
		m := directivePattern.FindStringSubmatch(line)
		if m == nil {
			if strings.Contains(line, "@ferrite") {
				r.Errorf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
					"malformed directive %q, expected '# @ferrite: key = \"value\"'", strings.TrimSpace(line))
			}
			continue
		}
		key := m[1]
		value := strings.Trim(strings.TrimSpace(m[2]), `"`)

		allowed, known := optionValues[key]
		if !known {
			r.Errorf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
				"unknown directive option %q", key)
			continue
		}
		if allowed != nil && !allowed[value] {
			r.Errorf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
				"invalid value %q for directive option %q", value, key)
			continue
		}
		applyDirective(ann, key, value, r)
	}
	validateDirectives(ann, r)
	return ann
}

func applyDirective(ann *ir.Annotations, key, value string, r *diag.Reporter) {
	switch key {
	case "optimization_level":
		switch value {
		case "conservative":
			ann.Opt = ir.OptConservative
		case "standard":
			ann.Opt = ir.OptStandard
		case "aggressive":
			ann.Opt = ir.OptAggressive
		}
	case "string_strategy":
		switch value {
		case "always_owned":
			ann.Strings = ir.StringAlwaysOwned
		case "zero_copy":
			ann.Strings = ir.StringZeroCopy
		case "cow":
			ann.Strings = ir.StringCow
		case "smart":
			ann.Strings = ir.StringSmart
		}
	case "ownership":
		switch value {
		case "owned":
			ann.Ownership = ir.OwnershipOwned
		case "borrowed":
			ann.Ownership = ir.OwnershipBorrowed
		case "shared":
			ann.Ownership = ir.OwnershipShared
		case "smart":
			ann.Ownership = ir.OwnershipSmart
		}
	case "bounds_checking":
		switch value {
		case "runtime":
			ann.Bounds = ir.BoundsRuntime
		case "explicit":
			ann.Bounds = ir.BoundsExplicit
		case "disabled":
			ann.Bounds = ir.BoundsDisabled
		}
	case "thread_safety":
		switch value {
		case "none":
			ann.Threads = ir.ThreadNone
		case "required":
			ann.Threads = ir.ThreadRequired
		}
	case "fold":
		ann.DisableFold = value == "off"
	case "dce":
		ann.DisableDCE = value == "off"
	case "cse":
		ann.DisableCSE = value == "off"
	case "inline":
		ann.DisableInl = value == "off"
	case "inline_budget":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			r.Errorf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
				"invalid value %q for directive option %q", value, key)
			return
		}
		ann.InlineBudget = n
	case "inline_depth":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			r.Errorf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
				"invalid value %q for directive option %q", value, key)
			return
		}
		ann.InlineDepth = n
	}
}

// validateDirectives warns about directive combinations that contradict
// each other. These are warnings: the later stages honor the settings as
// given and degrade conservatively where they conflict.
func validateDirectives(ann *ir.Annotations, r *diag.Reporter) {
	if ann.Strings == ir.StringZeroCopy && ann.Ownership == ir.OwnershipOwned {
		r.Warnf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
			"zero_copy string strategy conflicts with owned ownership model")
	}
	if ann.Opt == ir.OptAggressive && ann.Bounds == ir.BoundsExplicit {
		r.Warnf(diag.CatInvalidAnnotation, "directive", ir.ZeroSpan(),
			"aggressive optimization may conflict with explicit bounds checking")
	}
}

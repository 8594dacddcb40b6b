package script

import "github.com/bithenge/bithenge"

// primitiveTransforms mirrors original_source/.../transform.c's
// primitive_transforms[] table: the set of built-in names resolvable
// without a `transform` declaration (spec §4.7 "built-in primitives (§4.6)
// are resolvable without declaration"). "invalid" is deliberately absent
// here, matching the C table exactly; it is reachable only as the implicit
// switch-without-else fallback (spec §4.3), not as a script identifier —
// see DESIGN.md.
var primitiveTransforms = map[string]bithenge.Transform{
	"ascii":           bithenge.Ascii,
	"bit":             bithenge.Bit,
	"bits_be":         bithenge.BitsBe,
	"bits_le":         bithenge.BitsLe,
	"known_length":    bithenge.KnownLength,
	"nonzero_boolean": bithenge.NonzeroBoolean,
	"uint8":           bithenge.Uint8,
	"uint16be":        bithenge.Uint16BE,
	"uint16le":        bithenge.Uint16LE,
	"uint32be":        bithenge.Uint32BE,
	"uint32le":        bithenge.Uint32LE,
	"uint64be":        bithenge.Uint64BE,
	"uint64le":        bithenge.Uint64LE,
	"uint_be":         bithenge.UintBe,
	"uint_le":         bithenge.UintLe,
	"zero_terminated": bithenge.ZeroTerminated,
}

// numParamsOf reports a transform's declared parameter arity (spec §4.7):
// transforms implementing bithenge.Parametric report their own; anything
// else is arity 0, matching Parametric's documented default.
func numParamsOf(t bithenge.Transform) int {
	if p, ok := t.(bithenge.Parametric); ok {
		return p.NumParams()
	}
	return 0
}

package schema

import (
	"errors"
	"fmt"
	"image/color"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mitchellh/reflectwalk"
)

// ExposeTag is the struct tag that marks a field as an exposed parameter.
//
//	type LevelScript struct {
//		Intensity float32  `rs:"category=Lighting,clampmin=0,clampmax=10"`
//		Mode      uint8    `rs:"options=Day|Dusk|Night"`
//		Offset    mgl32.Vec3 `rs:""`
//		internal  int
//	}
//
// A field without the tag, or tagged "-", is not exposed.
const ExposeTag = "rs"

// LinearColor is a floating point RGBA colour, exported as four 0..1
// parameters without the 8-bit quantisation of color.RGBA.
type LinearColor struct {
	R, G, B, A float32
}

// ErrNotStruct is returned by Export when the value is not a struct or a
// pointer to one.
var ErrNotStruct = errors.New("exported value must be a struct")

var (
	vec3Type        = reflect.TypeOf(mgl32.Vec3{})
	rgbaType        = reflect.TypeOf(color.RGBA{})
	linearColorType = reflect.TypeOf(LinearColor{})
)

// Export turns the tagged fields of a property struct into parameter
// descriptors, in field declaration order. Fields with unsupported types are
// reported in skipped and left out of the result.
func Export(v any) (params []ParameterDescriptor, skipped []string, err error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil, ErrNotStruct
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, nil, ErrNotStruct
	}

	w := &exportWalker{}
	if err := reflectwalk.Walk(rv.Interface(), w); err != nil {
		return nil, nil, fmt.Errorf("export %s: %w", rv.Type(), err)
	}
	return w.params, w.skipped, nil
}

// MustExport is Export for statically known property structs.
func MustExport(v any) []ParameterDescriptor {
	params, _, err := Export(v)
	if err != nil {
		panic(err)
	}
	return params
}

type exposeOptions struct {
	category           string
	clampMin, clampMax *float32
	options            []string
}

func parseExposeTag(tag string) (exposeOptions, error) {
	var o exposeOptions
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, val, _ := strings.Cut(part, "=")
		switch k {
		case "category":
			o.category = val
		case "clampmin", "clampmax":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return o, fmt.Errorf("%s: %w", k, err)
			}
			f32 := float32(f)
			if k == "clampmin" {
				o.clampMin = &f32
			} else {
				o.clampMax = &f32
			}
		case "options":
			o.options = strings.Split(val, "|")
		default:
			return o, fmt.Errorf("unknown option %q", k)
		}
	}
	return o, nil
}

// limits returns the clamp range when both ends are tagged, otherwise the
// given defaults.
func (o exposeOptions) limits(min, max float32) (float32, float32) {
	if o.clampMin != nil && o.clampMax != nil {
		return *o.clampMin, *o.clampMax
	}
	return min, max
}

// exportWalker only looks at the top level fields: every field is skipped
// after it has been handled so the walk never descends into vectors or
// colours.
type exportWalker struct {
	params  []ParameterDescriptor
	skipped []string
}

func (w *exportWalker) Struct(reflect.Value) error { return nil }

func (w *exportWalker) StructField(f reflect.StructField, v reflect.Value) error {
	tag, ok := f.Tag.Lookup(ExposeTag)
	if !ok || tag == "-" || !f.IsExported() {
		return reflectwalk.SkipEntry
	}
	opts, err := parseExposeTag(tag)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}

	name := f.Name
	switch f.Type {
	case vec3Type:
		vec := v.Interface().(mgl32.Vec3)
		for i, axis := range []string{"x", "y", "z"} {
			w.add(opts, name, axis, -1, 1, 0.001, vec[i], nil)
		}
		return reflectwalk.SkipEntry
	case rgbaType:
		c := v.Interface().(color.RGBA)
		for i, ch := range []string{"r", "g", "b", "a"} {
			w.add(opts, name, ch, 0, 1, 0.0001, float32([]uint8{c.R, c.G, c.B, c.A}[i])/255, nil)
		}
		return reflectwalk.SkipEntry
	case linearColorType:
		c := v.Interface().(LinearColor)
		for i, ch := range []string{"r", "g", "b", "a"} {
			w.add(opts, name, ch, 0, 1, 0.0001, []float32{c.R, c.G, c.B, c.A}[i], nil)
		}
		return reflectwalk.SkipEntry
	}

	switch f.Type.Kind() {
	case reflect.Bool:
		def := float32(0)
		if v.Bool() {
			def = 1
		}
		w.add(opts, name, "", 0, 1, 1, def, []string{"Off", "On"})
	case reflect.Uint8:
		min, max := opts.limits(0, 255)
		w.add(opts, name, "", min, max, 1, float32(v.Uint()), opts.options)
	case reflect.Int, reflect.Int32, reflect.Int64:
		min, max := opts.limits(-1000, 1000)
		w.add(opts, name, "", min, max, 1, float32(v.Int()), opts.options)
	case reflect.Float32, reflect.Float64:
		min, max := opts.limits(-1, 1)
		w.add(opts, name, "", min, max, 0.001, float32(v.Float()), nil)
	default:
		w.skipped = append(w.skipped, name)
	}
	return reflectwalk.SkipEntry
}

func (w *exportWalker) add(opts exposeOptions, name, suffix string, min, max, step, def float32, options []string) {
	key, display := name, name
	if suffix != "" {
		key += "_" + suffix
		display += " " + suffix
	}
	if len(options) > 0 {
		min, max, step = 0, float32(len(options)-1), 1
	}
	w.params = append(w.params, ParameterDescriptor{
		Group:       opts.category,
		DisplayName: display,
		Key:         key,
		Min:         min,
		Max:         max,
		Step:        step,
		Default:     def,
		Options:     options,
		DMXOffset:   DMXOffsetAuto,
		DMXType:     DMXType16BigEndian,
	})
}

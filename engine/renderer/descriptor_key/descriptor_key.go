// Package descriptor_key canonicalizes GPU object descriptors into stable cache keys.
//
// A descriptor is pure value data: structs, maps, slices, arrays, pointers to value data
// and primitive fields. Canonicalization walks the value and emits a normalized text form:
//
//   - struct fields are emitted sorted by name, map entries sorted by their encoded key
//   - zero-valued struct fields and map entries are omitted, so an absent field and a field
//     explicitly set to its zero value produce the same key
//   - numbers use the shortest round-trip decimal form, negative zero is zero
//   - slices keep their order, empty slices and nil pointers count as absent
//   - values held in interfaces are prefixed with their dynamic type, <pkg/path.T>, so
//     int32(1) and uint8(1) behind an `any` are different keys
//
// The key is the full canonical text, prefixed with the descriptor's type name, so two
// keys are equal exactly when the descriptors are structurally equal.
//
// Live handles are rejected with ErrNonSerializable: channels, funcs, unsafe pointers,
// uintptrs, complex numbers and structs with unexported fields. A struct whose fields are
// all unexported is an opaque handle such as *wgpu.Buffer; a struct mixing both kinds would
// have part of its state ignored.
//
// Struct tags control field naming:
//
//	Name  string `key:"-"`      // excluded from the key
//	Color [4]float32 `key:"rgba"` // emitted as "rgba"
package descriptor_key

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// maxDepth bounds recursion so self-referential pointers fail instead of overflowing the stack.
const maxDepth = 64

var (
	// ErrNonSerializable is returned when a descriptor holds a live handle or other non-value data.
	ErrNonSerializable = errors.New("descriptor_key: descriptor holds a non-serializable value")

	// ErrNilDescriptor is returned when Canonicalize is called with nil.
	ErrNilDescriptor = errors.New("descriptor_key: nil descriptor")

	// ErrTooDeep is returned when a descriptor nests deeper than the recursion limit.
	ErrTooDeep = errors.New("descriptor_key: descriptor nesting too deep")
)

// Key is the canonical identity of a descriptor.
type Key string

// String returns the canonical text.
func (k Key) String() string {
	return string(k)
}

// Hash returns a 64-bit FNV-1a digest of the key, for labels and logs only.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(k))
	return h.Sum64()
}

// Short returns the hex digest used in GPU object labels.
func (k Key) Short() string {
	return strconv.FormatUint(k.Hash(), 16)
}

// Canonicalize derives the Key of a descriptor.
//
// Parameters:
//   - descriptor: pure value data describing a GPU object
//
// Returns:
//   - Key: the canonical key
//   - error: ErrNilDescriptor, ErrNonSerializable or ErrTooDeep
func Canonicalize(descriptor any) (Key, error) {
	if descriptor == nil {
		return "", ErrNilDescriptor
	}
	v := reflect.ValueOf(descriptor)
	t := v.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	var b strings.Builder
	b.WriteString(typeName(t))
	b.WriteByte('|')
	if _, err := encode(&b, v, 0); err != nil {
		return "", err
	}
	return Key(b.String()), nil
}

// MustCanonicalize is Canonicalize for descriptors built by the engine itself.
// A failure is a programming error and panics.
func MustCanonicalize(descriptor any) Key {
	k, err := Canonicalize(descriptor)
	if err != nil {
		panic(err)
	}
	return k
}

// encode writes the canonical form of v to b and reports whether v carried any
// non-zero content. Callers that omit absent values discard what was written.
func encode(b *strings.Builder, v reflect.Value, depth int) (bool, error) {
	if depth > maxDepth {
		return false, ErrTooDeep
	}
	if !v.IsValid() {
		b.WriteString("~")
		return false, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			b.WriteString("true")
			return true, nil
		}
		b.WriteString("false")
		return false, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
		return v.Int() != 0, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
		return v.Uint() != 0, nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f == 0 {
			b.WriteString("0")
			return false, nil
		}
		bits := 64
		if v.Kind() == reflect.Float32 {
			bits = 32
		}
		if math.IsNaN(f) {
			b.WriteString("NaN")
		} else {
			b.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
		}
		return true, nil

	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))
		return v.Len() > 0, nil

	case reflect.Pointer:
		if v.IsNil() {
			b.WriteString("~")
			return false, nil
		}
		return encode(b, v.Elem(), depth+1)

	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("~")
			return false, nil
		}
		e := v.Elem()
		b.WriteByte('<')
		b.WriteString(typeName(e.Type()))
		b.WriteByte('>')
		return encode(b, e, depth+1)

	case reflect.Slice, reflect.Array:
		return encodeList(b, v, depth)

	case reflect.Map:
		return encodeMap(b, v, depth)

	case reflect.Struct:
		return encodeStruct(b, v, depth)
	}

	return false, fmt.Errorf("%w: %s", ErrNonSerializable, v.Type())
}

// typeName qualifies named types with their full package path.
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func encodeList(b *strings.Builder, v reflect.Value, depth int) (bool, error) {
	if v.Kind() == reflect.Slice && v.IsNil() {
		b.WriteString("[]")
		return false, nil
	}
	// byte slices are blobs, e.g. uniform contents
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		b.WriteString("0x")
		b.WriteString(fmt.Sprintf("%x", v.Bytes()))
		return v.Len() > 0, nil
	}

	present := false
	b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		p, err := encode(b, v.Index(i), depth+1)
		if err != nil {
			return false, err
		}
		present = present || p
	}
	b.WriteByte(']')
	if v.Kind() == reflect.Slice {
		return v.Len() > 0, nil
	}
	return present, nil
}

func encodeMap(b *strings.Builder, v reflect.Value, depth int) (bool, error) {
	type entry struct{ k, v string }
	entries := make([]entry, 0, v.Len())

	iter := v.MapRange()
	for iter.Next() {
		var vb strings.Builder
		present, err := encode(&vb, iter.Value(), depth+1)
		if err != nil {
			return false, err
		}
		if !present {
			continue
		}
		var kb strings.Builder
		if _, err := encode(&kb, iter.Key(), depth+1); err != nil {
			return false, err
		}
		entries = append(entries, entry{kb.String(), vb.String()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })

	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.k)
		b.WriteByte(':')
		b.WriteString(e.v)
	}
	b.WriteByte('}')
	return len(entries) > 0, nil
}

func encodeStruct(b *strings.Builder, v reflect.Value, depth int) (bool, error) {
	plan, err := planFor(v.Type())
	if err != nil {
		return false, err
	}

	wrote := false
	b.WriteByte('{')
	for _, f := range plan {
		var fb strings.Builder
		present, err := encode(&fb, v.Field(f.index), depth+1)
		if err != nil {
			return false, fmt.Errorf("%s.%s: %w", v.Type(), f.goName, err)
		}
		if !present {
			continue
		}
		if wrote {
			b.WriteByte(',')
		}
		b.WriteString(f.name)
		b.WriteByte(':')
		b.WriteString(fb.String())
		wrote = true
	}
	b.WriteByte('}')
	return wrote, nil
}

type fieldPlan struct {
	index  int
	name   string
	goName string
}

var plans sync.Map // reflect.Type -> []fieldPlan

// planFor returns the exported fields of t sorted by emitted name.
func planFor(t reflect.Type) ([]fieldPlan, error) {
	if cached, ok := plans.Load(t); ok {
		return cached.([]fieldPlan), nil
	}

	plan := make([]fieldPlan, 0, t.NumField())
	hidden := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			hidden++
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("key"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		plan = append(plan, fieldPlan{index: i, name: name, goName: sf.Name})
	}
	switch {
	case hidden > 0 && len(plan) == 0:
		return nil, fmt.Errorf("%w: opaque handle %s", ErrNonSerializable, t)
	case hidden > 0:
		return nil, fmt.Errorf("%w: %s has %d unexported fields", ErrNonSerializable, t, hidden)
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].name < plan[j].name })

	plans.Store(t, plan)
	return plan, nil
}

package jsonkv

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Documenter is implemented by values that know their own JSON document
// form. [Store.Set] calls ToDocument and stores the result.
type Documenter interface {
	ToDocument() (any, error)
}

// Converter turns an arbitrary value into its JSON document form.
type Converter func(value any) (any, error)

// toDocumentForm applies the conversion policy: an explicit converter wins,
// then [Documenter] or [json.Marshaler], then values that encoding/json can
// encode as-is. The result is normalized to what decoding the encoded form
// yields, so in-memory state matches what a reload would produce.
func toDocumentForm(value any, convert Converter) (any, error) {
	var (
		form any
		err  error
	)

	form = value
	if convert != nil {
		form, err = convert(value)
		if err != nil {
			return nil, fmt.Errorf("%w: converter: %w", ErrNotEncodable, err)
		}
	}

	if d, ok := form.(Documenter); ok {
		form, err = d.ToDocument()
		if err != nil {
			return nil, fmt.Errorf("%w: %T.ToDocument: %w", ErrNotEncodable, d, err)
		}
	}

	if _, ok := form.(json.Marshaler); !ok {
		if err := checkEncodable(reflect.ValueOf(form)); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotEncodable, err)
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotEncodable, err)
	}

	return normalized, nil
}

// checkEncodable accepts JSON primitives and containers of them. Structs,
// functions, channels and non-string map keys need a [Documenter] or an
// explicit [Converter].
func checkEncodable(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}

	if v.Type().Implements(reflect.TypeFor[json.Marshaler]()) {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %v", ErrNotEncodable, f)
		}

		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}

		if v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct {
			return fmt.Errorf("%w: %s", ErrNotEncodable, v.Type())
		}

		return checkEncodable(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}

		for i := range v.Len() {
			if err := checkEncodable(v.Index(i)); err != nil {
				return err
			}
		}

		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key type %s", ErrNotEncodable, v.Type().Key())
		}

		iter := v.MapRange()
		for iter.Next() {
			if err := checkEncodable(iter.Value()); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrNotEncodable, v.Type())
	}
}

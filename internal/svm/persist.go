package svm

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

const (
	blobMagic   = "mlsvm"
	blobVersion = 1

	blobBinary     = "binary"
	blobMulticlass = "multiclass"
)

type blobHeader struct {
	Magic   string
	Version int
	Type    string
}

// Method-free copies of the models, so gob does not recurse into
// MarshalBinary.
type (
	binaryState     BinarySVM
	multiclassState MulticlassSVM
)

func encodeBlob(typ string, v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(blobHeader{Magic: blobMagic, Version: blobVersion, Type: typ}); err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode %s model: %w", typ, err)
	}
	return buf.Bytes(), nil
}

func decodeBlob(data []byte, typ string, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var h blobHeader
	if err := dec.Decode(&h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrDeserialization, err)
	}
	if h.Magic != blobMagic {
		return fmt.Errorf("%w: bad magic %q", ErrDeserialization, h.Magic)
	}
	if h.Version != blobVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrDeserialization, h.Version)
	}
	if h.Type != typ {
		return fmt.Errorf("%w: blob holds a %s model, want %s", ErrDeserialization, h.Type, typ)
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return nil
}

// MarshalBinary serializes the kernel configuration, training vectors,
// multipliers, threshold and class mapping.
func (m *BinarySVM) MarshalBinary() ([]byte, error) {
	return encodeBlob(blobBinary, (*binaryState)(m))
}

func (m *BinarySVM) UnmarshalBinary(data []byte) error {
	var st binaryState
	if err := decodeBlob(data, blobBinary, &st); err != nil {
		return err
	}
	if err := (*BinarySVM)(&st).validate(); err != nil {
		return err
	}
	*m = BinarySVM(st)
	return nil
}

func (m *BinarySVM) validate() error {
	k := m.Kernel
	if k == nil {
		return fmt.Errorf("%w: missing kernel", ErrDeserialization)
	}
	if _, ok := kernelNames[k.Kind]; !ok {
		return fmt.Errorf("%w: unknown kernel kind %d", ErrDeserialization, int(k.Kind))
	}
	l := len(k.Y)
	if len(k.X) != l || len(k.QD) != l {
		return fmt.Errorf("%w: kernel holds %d vectors, %d labels, %d diagonal entries",
			ErrDeserialization, len(k.X), l, len(k.QD))
	}
	if len(m.Alpha) != l {
		return fmt.Errorf("%w: %d multipliers for %d samples", ErrDeserialization, len(m.Alpha), l)
	}
	for i, y := range k.Y {
		if y != 1 && y != -1 {
			return fmt.Errorf("%w: label %d is %v, want -1 or +1", ErrDeserialization, i, y)
		}
	}
	if l > 0 && m.Classes[0] == m.Classes[1] {
		return fmt.Errorf("%w: both sides map to class %d", ErrDeserialization, m.Classes[0])
	}
	for i, x := range k.X {
		if len(x) != m.InDim {
			return fmt.Errorf("%w: vector %d has %d features, expected %d", ErrDeserialization, i, len(x), m.InDim)
		}
	}
	return nil
}

func (m *MulticlassSVM) MarshalBinary() ([]byte, error) {
	return encodeBlob(blobMulticlass, (*multiclassState)(m))
}

func (m *MulticlassSVM) UnmarshalBinary(data []byte) error {
	var st multiclassState
	if err := decodeBlob(data, blobMulticlass, &st); err != nil {
		return err
	}
	want := len(st.Labels)
	if st.Strategy == OneVsOne {
		want = want * (want - 1) / 2
	}
	if len(st.Subs) != want {
		return fmt.Errorf("%w: %d sub-models for %d classes under %s",
			ErrDeserialization, len(st.Subs), len(st.Labels), st.Strategy)
	}
	for i := 1; i < len(st.Labels); i++ {
		if st.Labels[i-1] >= st.Labels[i] {
			return fmt.Errorf("%w: class labels %v are not strictly ascending", ErrDeserialization, st.Labels)
		}
	}
	mc := MulticlassSVM(st)
	for _, sub := range mc.Subs {
		if sub.SVM == nil {
			return fmt.Errorf("%w: sub-model %s is empty", ErrDeserialization, sub)
		}
		if sub.SVM.InDim != mc.InDim {
			return fmt.Errorf("%w: sub-model %s expects %d features, model expects %d",
				ErrDeserialization, sub, sub.SVM.InDim, mc.InDim)
		}
		if !mc.hasClass(sub.Classes[0]) || !mc.hasClass(sub.Classes[1]) {
			return fmt.Errorf("%w: sub-model %s names a class outside %v", ErrDeserialization, sub, mc.Labels)
		}
	}
	*m = mc
	return nil
}

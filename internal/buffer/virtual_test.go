package buffer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func producerOf(values []float64, shape Shape) (Producer, *int) {
	calls := new(int)
	return func() (*Raw, error) {
		*calls++
		return FromFloat64s(values, shape)
	}, calls
}

func TestVirtualMaterializeRunsProducerOnce(t *testing.T) {
	producer, calls := producerOf([]float64{1, 2, 3}, Shape{3})
	v, err := NewVirtual(Shape{3}, Float64, CPU, producer)
	if err != nil {
		t.Fatalf("NewVirtual: %v", err)
	}

	first, err := v.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	second, err := v.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if first != second {
		t.Error("Materialize should return the same cached buffer both times")
	}
	if *calls != 1 {
		t.Errorf("producer calls = %d, want 1", *calls)
	}
}

func TestVirtualMetadataNeverTriggersProducer(t *testing.T) {
	v, err := NewVirtual(Shape{4, 2}, Int32, CPU, func() (*Raw, error) {
		t.Fatal("metadata query invoked the producer")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("NewVirtual: %v", err)
	}

	if !v.Shape().Equal(Shape{4, 2}) {
		t.Errorf("Shape = %v, want [4 2]", []int(v.Shape()))
	}
	if v.DType() != Int32 {
		t.Errorf("DType = %s, want int32", v.DType())
	}
	if v.Len() != 4 {
		t.Errorf("Len = %d, want 4", v.Len())
	}
	if v.IsMaterialized() {
		t.Error("IsMaterialized should be false before first use")
	}
}

func TestIsMaterializedNeverBlocksOnInFlightProducer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	v, err := NewVirtual(Shape{1}, Float64, CPU, func() (*Raw, error) {
		close(started)
		<-release
		return FromFloat64s([]float64{1}, Shape{1})
	})
	if err != nil {
		t.Fatalf("NewVirtual: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v.Materialize()
	}()
	<-started

	answered := make(chan bool, 1)
	go func() { answered <- v.IsMaterialized() }()
	select {
	case got := <-answered:
		if got {
			t.Error("IsMaterialized = true while the producer is still running")
		}
	case <-time.After(time.Second):
		t.Fatal("IsMaterialized blocked on an in-flight producer")
	}

	close(release)
	wg.Wait()
	if !v.IsMaterialized() {
		t.Error("IsMaterialized should be true once the producer completes")
	}
}

func TestVirtualRejectsUnknownDims(t *testing.T) {
	_, err := NewVirtual(Shape{Unknown, 2}, Float64, CPU, func() (*Raw, error) { return nil, nil })
	if err == nil {
		t.Fatal("NewVirtual should reject unknown dimensions")
	}
}

func TestVirtualProducerErrorIsCached(t *testing.T) {
	calls := 0
	v, _ := NewVirtual(Shape{2}, Float64, CPU, func() (*Raw, error) {
		calls++
		return nil, errors.New("fetch failed")
	})

	if _, err := v.Materialize(); err == nil {
		t.Fatal("Materialize should propagate the producer error")
	}
	if _, err := v.Materialize(); err == nil {
		t.Fatal("cached error should be returned again")
	}
	if calls != 1 {
		t.Errorf("producer calls = %d, want 1 (failures cache too)", calls)
	}
}

func TestVirtualConsistencyPanic(t *testing.T) {
	v, _ := NewVirtual(Shape{3}, Float64, CPU, func() (*Raw, error) {
		return FromFloat64s([]float64{1, 2}, Shape{2})
	})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("shape disagreement should panic")
		}
		if _, ok := r.(*ConsistencyError); !ok {
			t.Fatalf("panic value = %T, want *ConsistencyError", r)
		}
	}()
	_, _ = v.Materialize()
}

func TestVirtualConcurrentMaterializeSingleWriter(t *testing.T) {
	producer, calls := producerOf([]float64{1, 2, 3, 4}, Shape{4})
	v, _ := NewVirtual(Shape{4}, Float64, CPU, producer)

	var wg sync.WaitGroup
	results := make([]*Raw, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = v.Materialize()
		}(i)
	}
	wg.Wait()

	if *calls != 1 {
		t.Errorf("producer calls = %d, want 1", *calls)
	}
	for i := 1; i < 8; i++ {
		if results[i] != results[0] {
			t.Fatal("all goroutines should observe the same cached buffer")
		}
	}
}

func TestVirtualWithDTypeBeforeMaterialization(t *testing.T) {
	producer, calls := producerOf([]float64{1, 2}, Shape{2})
	v, _ := NewVirtual(Shape{2}, Float64, CPU, producer)

	over, err := v.WithDType(Int64)
	if err != nil {
		t.Fatalf("WithDType: %v", err)
	}
	if over.DType() != Int64 {
		t.Errorf("DType = %s, want int64", over.DType())
	}
	if *calls != 0 {
		t.Error("WithDType should not materialize")
	}

	raw, err := over.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if raw.DType() != Int64 {
		t.Errorf("materialized DType = %s, want int64", raw.DType())
	}
}

func TestVirtualWithDTypeAfterMaterializationFails(t *testing.T) {
	producer, _ := producerOf([]float64{1}, Shape{1})
	v, _ := NewVirtual(Shape{1}, Float64, CPU, producer)
	if _, err := v.Materialize(); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, err := v.WithDType(Int64); err == nil {
		t.Fatal("WithDType on a materialized array should fail")
	}
}

func TestVirtualSliceStaysLazy(t *testing.T) {
	producer, calls := producerOf([]float64{0, 1, 2, 3, 4, 5, 6, 7}, Shape{4, 2})
	v, _ := NewVirtual(Shape{4, 2}, Float64, CPU, producer)

	sliced, err := v.SliceRange(1, 3)
	if err != nil {
		t.Fatalf("SliceRange: %v", err)
	}
	if *calls != 0 {
		t.Error("SliceRange should not materialize")
	}
	if !sliced.Shape().Equal(Shape{2, 2}) {
		t.Errorf("sliced shape = %v, want [2 2]", []int(sliced.Shape()))
	}

	raw, err := sliced.(*Virtual).Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got := raw.AsFloat64(); got[0] != 2 || got[3] != 5 {
		t.Errorf("sliced values = %v, want [2 3 4 5]", got)
	}
}

func TestVirtualSliceNegativeBound(t *testing.T) {
	producer, calls := producerOf([]float64{0, 1, 2, 3, 4, 5, 6, 7}, Shape{4, 2})
	v, _ := NewVirtual(Shape{4, 2}, Float64, CPU, producer)

	// Negative bounds count from the end, same as on eager buffers.
	sliced, err := v.SliceRange(0, -1)
	if err != nil {
		t.Fatalf("SliceRange: %v", err)
	}
	if *calls != 0 {
		t.Error("SliceRange should not materialize")
	}
	if !sliced.Shape().Equal(Shape{3, 2}) {
		t.Errorf("sliced shape = %v, want [3 2]", []int(sliced.Shape()))
	}

	raw, err := sliced.(*Virtual).Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got := raw.AsFloat64(); len(got) != 6 || got[0] != 0 || got[5] != 5 {
		t.Errorf("sliced values = %v, want [0 1 2 3 4 5]", got)
	}
}

func TestVirtualSliceUnknownBound(t *testing.T) {
	producer, _ := producerOf([]float64{1, 2, 3}, Shape{3})
	v, _ := NewVirtual(Shape{3}, Float64, CPU, producer)

	_, err := v.SliceRange(0, Unknown)
	if !errors.Is(err, ErrUnsupportedSlice) {
		t.Fatalf("err = %v, want ErrUnsupportedSlice", err)
	}
}

func TestVirtualViewAsStaysLazy(t *testing.T) {
	producer, calls := producerOf([]float64{1, 2, 3, 4}, Shape{4})
	v, _ := NewVirtual(Shape{4}, Float64, CPU, producer)

	viewed, err := v.ViewAs(Int32)
	if err != nil {
		t.Fatalf("ViewAs: %v", err)
	}
	if *calls != 0 {
		t.Error("ViewAs should not materialize")
	}
	if !viewed.Shape().Equal(Shape{8}) {
		t.Errorf("viewed shape = %v, want [8]", []int(viewed.Shape()))
	}
	if viewed.DType() != Int32 {
		t.Errorf("viewed dtype = %s, want int32", viewed.DType())
	}
}

func TestVirtualViewAsIncompatible(t *testing.T) {
	producer, _ := producerOf([]float64{1}, Shape{1})
	v, _ := NewVirtual(Shape{1}, Float64, CPU, producer)

	_, err := v.ViewAs(Complex128)
	if !errors.Is(err, ErrIncompatibleView) {
		t.Fatalf("err = %v, want ErrIncompatibleView", err)
	}
}

func TestVirtualTransposeStaysLazy(t *testing.T) {
	producer, calls := producerOf([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	v, _ := NewVirtual(Shape{2, 3}, Float64, CPU, producer)

	tr := v.Transpose()
	if *calls != 0 {
		t.Error("Transpose should not materialize")
	}
	if !tr.Shape().Equal(Shape{3, 2}) {
		t.Errorf("transposed shape = %v, want [3 2]", []int(tr.Shape()))
	}

	raw, err := tr.(*Virtual).Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got := raw.AsFloat64(); got[0] != 1 || got[1] != 4 {
		t.Errorf("transposed values = %v", got)
	}
}

func TestVirtualTransposeEagerWhenMaterialized(t *testing.T) {
	producer, _ := producerOf([]float64{1, 2, 3, 4}, Shape{2, 2})
	v, _ := NewVirtual(Shape{2, 2}, Float64, CPU, producer)
	if _, err := v.Materialize(); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if _, ok := v.Transpose().(*Raw); !ok {
		t.Error("Transpose of a materialized array should return an eager buffer")
	}
}

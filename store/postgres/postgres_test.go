package postgres

import "testing"

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{1, -0.5, 0.25})
	want := "[1,-0.5,0.25]"
	if got != want {
		t.Errorf("vectorLiteral() = %q, want %q", got, want)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Errorf("vectorLiteral(nil) = %q, want []", got)
	}
}

func TestSinkDDLOptions(t *testing.T) {
	s := NewSink(nil)
	if s.vectorType() != "vector" {
		t.Errorf("vectorType() = %q, want vector", s.vectorType())
	}
	if s.hnswWithClause() != "" {
		t.Errorf("hnswWithClause() = %q, want empty", s.hnswWithClause())
	}

	s = NewSink(nil, WithEmbeddingDimension(768), WithHNSWM(32), WithEFConstruction(128))
	if s.vectorType() != "vector(768)" {
		t.Errorf("vectorType() = %q, want vector(768)", s.vectorType())
	}
	if s.hnswWithClause() != " WITH (m = 32, ef_construction = 128)" {
		t.Errorf("hnswWithClause() = %q", s.hnswWithClause())
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("nullIfEmpty(\"\") should be nil")
	}
	if v := nullIfEmpty("x"); v == nil || *v != "x" {
		t.Errorf("nullIfEmpty(\"x\") = %v", v)
	}
}

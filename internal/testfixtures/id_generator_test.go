package testfixtures

import "testing"

func TestShadowNamesAreSequential(t *testing.T) {
	gen := NewShadowNames()

	first := gen.Next("notes")
	second := gen.NextFunc()("tasks")

	if first != "notes__shadow_1" || second != "tasks__shadow_2" {
		t.Fatalf("unexpected names: %q, %q", first, second)
	}
	if gen.Count() != 2 {
		t.Fatalf("expected 2 issued names, got %d", gen.Count())
	}
}

func TestShadowNamesIssuedIsACopy(t *testing.T) {
	gen := NewShadowNames()
	_ = gen.Next("notes")

	issued := gen.Issued()
	issued[0] = "mutated"

	if got := gen.Issued()[0]; got != "notes__shadow_1" {
		t.Fatalf("expected recorded name to be unaffected, got %q", got)
	}
}

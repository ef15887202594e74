package memory

import (
	"testing"
)

func TestTeachAndAnswer(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := st.Answer("prazo de entrega"); got != "" {
		t.Errorf("Answer before teaching = %q, want empty", got)
	}

	if err := st.Teach("Prazo de Entrega", "Até 15 dias úteis."); err != nil {
		t.Fatalf("Teach failed: %v", err)
	}

	// Lookup is case-insensitive and trims whitespace.
	if got := st.Answer("  PRAZO DE ENTREGA "); got != "Até 15 dias úteis." {
		t.Errorf("Answer = %q", got)
	}
}

func TestTeachRejectsEmpty(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := st.Teach("", "resposta"); err == nil {
		t.Errorf("Teach should reject empty question")
	}
	if err := st.Teach("pergunta", "  "); err == nil {
		t.Errorf("Teach should reject empty answer")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := st.Teach("frete", "Frete grátis acima de R$ 200."); err != nil {
		t.Fatalf("Teach failed: %v", err)
	}

	st2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := st2.Answer("frete"); got != "Frete grátis acima de R$ 200." {
		t.Errorf("reopened Answer = %q", got)
	}
}

func TestParseTeach(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		question string
		answer   string
	}{
		{"arrow separator", "ensinar: prazo => 15 dias úteis", "prazo", "15 dias úteis"},
		{"equals separator", "ensinar prazo = 15 dias", "prazo", "15 dias"},
		{"thin arrow", "aprenda: frete -> grátis acima de 200", "frete", "grátis acima de 200"},
		{"case folding question", "ensinar: PRAZO => 15 dias", "prazo", "15 dias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTeach(tt.input)
			if got == nil {
				t.Fatalf("ParseTeach(%q) = nil", tt.input)
			}
			if got.Question != tt.question || got.Answer != tt.answer {
				t.Errorf("ParseTeach(%q) = %q/%q, want %q/%q", tt.input, got.Question, got.Answer, tt.question, tt.answer)
			}
		})
	}
}

func TestParseTeachRejects(t *testing.T) {
	for _, input := range []string{
		"oi, tudo bem?",
		"ensinar sem separador",
		"ensinar: => resposta sem pergunta",
		"ensinar: pergunta =>",
	} {
		if got := ParseTeach(input); got != nil {
			t.Errorf("ParseTeach(%q) = %+v, want nil", input, got)
		}
	}
}

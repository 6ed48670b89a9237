package layout

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/howdo/internal/answers"
	"github.com/kalambet/howdo/internal/document"
)

func testRecord(kind document.Kind, steps string) document.Record {
	a := answers.Answers{
		Company:      "Acme",
		BusinessArea: "Mfg",
		ProcessName:  "Assembly",
		Audience:     "Operators",
		Steps:        steps,
	}
	return document.Normalize(a, kind, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
}

func defaultSet(t *testing.T) *Set {
	t.Helper()
	set, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	return set
}

func findBlock(page Page, typ BlockType) (Block, bool) {
	for _, b := range page.Blocks {
		if b.Type == typ {
			return b, true
		}
	}
	return Block{}, false
}

func TestDefault_AllKindsResolve(t *testing.T) {
	set := defaultSet(t)

	for _, k := range document.Kinds {
		page, err := set.Resolve(testRecord(k, "a.b"))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", k, err)
		}
		if page.Title == "" {
			t.Errorf("%s: empty title", k)
		}
		if page.Footer != "Создано с помощью платформы HowDo" {
			t.Errorf("%s: footer = %q", k, page.Footer)
		}
		if _, ok := findBlock(page, BlockSignatures); !ok {
			t.Errorf("%s: missing signatures block", k)
		}
	}
}

func TestResolve_SOKStepTable(t *testing.T) {
	page, err := defaultSet(t).Resolve(testRecord(document.KindSOK, "Prepare. Assemble. Check"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	b, ok := findBlock(page, BlockStepTable)
	if !ok {
		t.Fatal("missing step table")
	}
	if !b.Table.BoldFirstRow {
		t.Error("step table header should be bold")
	}
	if len(b.Table.Rows) != 4 {
		t.Fatalf("rows = %d, want header + 3 steps", len(b.Table.Rows))
	}
	want := []string{"2", "Шаг 2", "Assemble", "✓"}
	for i, cell := range b.Table.Rows[2] {
		if cell != want[i] {
			t.Errorf("row 2 cell %d = %q, want %q", i, cell, want[i])
		}
	}

	info, _ := findBlock(page, BlockInfoTable)
	if got := info.Table.Rows[3][1]; got != "02.01.2025" {
		t.Errorf("date cell = %q, want 02.01.2025", got)
	}
}

func TestResolve_InstructionStepList(t *testing.T) {
	page, err := defaultSet(t).Resolve(testRecord(document.KindInstruction, "Step1.Step2.Step3"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if page.Subtitle != "Assembly" {
		t.Errorf("Subtitle = %q, want Assembly", page.Subtitle)
	}
	b, ok := findBlock(page, BlockStepList)
	if !ok {
		t.Fatal("missing step list")
	}
	if len(b.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(b.Items))
	}
	for i, it := range b.Items {
		wantText := []string{"Step1", "Step2", "Step3"}[i]
		if it.Text != wantText {
			t.Errorf("item %d text = %q, want %q", i, it.Text, wantText)
		}
		if !strings.HasPrefix(it.Heading, "Шаг ") {
			t.Errorf("item %d heading = %q", i, it.Heading)
		}
	}
}

func TestResolve_ProcedureResponsibleColumn(t *testing.T) {
	page, err := defaultSet(t).Resolve(testRecord(document.KindProcedure, "a;b"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, _ := findBlock(page, BlockStepTable)
	if got := b.Table.Rows[1][2]; got != "Operators" {
		t.Errorf("responsible = %q, want Operators", got)
	}

	var purpose string
	for _, blk := range page.Blocks {
		if blk.Type == BlockParagraph && strings.Contains(blk.Text, "регламентирует") {
			purpose = blk.Text
		}
	}
	if !strings.Contains(purpose, "«Assembly»") || !strings.Contains(purpose, "Acme") {
		t.Errorf("purpose paragraph = %q", purpose)
	}
}

func TestResolve_NoStepsOmitsStepBlocks(t *testing.T) {
	set := defaultSet(t)
	for _, k := range document.Kinds {
		page, err := set.Resolve(testRecord(k, ""))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", k, err)
		}
		if _, ok := findBlock(page, BlockStepTable); ok {
			t.Errorf("%s: step table present without steps", k)
		}
		if _, ok := findBlock(page, BlockStepList); ok {
			t.Errorf("%s: step list present without steps", k)
		}
	}
}

func TestResolve_SubtitleWithoutProcessName(t *testing.T) {
	tests := []struct {
		kind document.Kind
		want string
	}{
		{document.KindInstruction, "Процесс"},
		{document.KindProcedure, "Процедура"},
	}
	for _, tt := range tests {
		rec := document.Normalize(answers.Answers{Company: "Acme"}, tt.kind, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
		page, err := defaultSet(t).Resolve(rec)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.kind, err)
		}
		if page.Subtitle != tt.want {
			t.Errorf("%s subtitle = %q, want %q", tt.kind, page.Subtitle, tt.want)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "layouts: ["},
		{"missing kind", "layouts:\n  sok:\n    title: x\n"},
		{"unknown kind", "layouts:\n  memo:\n    title: x\n"},
		{"unknown block", "layouts:\n  sok:\n    blocks:\n      - type: chart\n"},
		{"bad field", "layouts:\n  sok:\n    blocks:\n      - {type: paragraph, text: \"{{.Nope}}\"}\n  instruction: {}\n  procedure: {}\n"},
		{"bad level", "layouts:\n  sok:\n    blocks:\n      - {type: heading, level: 7, text: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

package model

import "testing"

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name    string
		marks   []int
		total   int
		max     int
		percent float64
		status  Status
	}{
		{"mixed", []int{8, 6, 10}, 24, 30, 80.0, StatusPass},
		{"boundary passes", []int{5, 5}, 10, 20, 50.0, StatusPass},
		{"below boundary", []int{4, 5}, 9, 20, 45.0, StatusFail},
		{"zero", []int{0}, 0, 10, 0, StatusFail},
		{"nothing answered", nil, 0, 0, 0, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeScore(tt.marks)
			if s.TotalMarks != tt.total || s.MaxMarks != tt.max {
				t.Errorf("marks = %d/%d, want %d/%d", s.TotalMarks, s.MaxMarks, tt.total, tt.max)
			}
			if s.Percentage != tt.percent {
				t.Errorf("percentage = %v, want %v", s.Percentage, tt.percent)
			}
			if s.Status != tt.status {
				t.Errorf("status = %s, want %s", s.Status, tt.status)
			}
		})
	}
}

func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		in   string
		want DocumentType
		ok   bool
	}{
		{"research_paper", DocResearchPaper, true},
		{"  Thesis ", DocThesis, true},
		{"TUTORIAL", DocTutorial, true},
		{"poem", DocGeneral, false},
		{"", DocGeneral, false},
	}
	for _, tt := range tests {
		got, ok := ParseDocumentType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDocumentType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDocumentTypeTitle(t *testing.T) {
	if got := DocResearchPaper.Title(); got != "Research Paper" {
		t.Errorf("Title() = %q", got)
	}
	if got := DocGeneral.Title(); got != "General" {
		t.Errorf("Title() = %q", got)
	}
}

func TestLifelineKindValid(t *testing.T) {
	if !LifelineRephrase.Valid() || !LifelineNew.Valid() {
		t.Error("rephrase and new must be valid")
	}
	if LifelineNone.Valid() || LifelineKind("skip").Valid() {
		t.Error("unknown kinds must be invalid")
	}
}

package document

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/temirov/recap/internal/types"
)

var fixedTime = time.Date(2026, time.March, 4, 5, 6, 7, 0, time.UTC)

func TestComposeWithoutPriorDocument(t *testing.T) {
	for _, prior := range []string{"", "   \n\t\n"} {
		composed, err := Compose(prior, "Body")
		if err != nil {
			t.Fatalf("Compose error: %v", err)
		}
		expected := StartMarker + "\nBody\n" + EndMarker + "\n"
		if composed != expected {
			t.Fatalf("expected %q, got %q", expected, composed)
		}
	}
}

func TestComposePreservesContentOutsideMarkers(t *testing.T) {
	prior := "# Title\r\n\nhand written  \n" + StartMarker + "\nold summary\nmore old\n" + EndMarker + "\n\n## Footer\nkeep me"
	composed, err := Compose(prior, "new summary")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	expected := "# Title\r\n\nhand written  \n" + StartMarker + "\nnew summary\n" + EndMarker + "\n\n## Footer\nkeep me"
	if composed != expected {
		t.Fatalf("expected %q, got %q", expected, composed)
	}
	region, ok := Region(composed)
	if !ok || region != "new summary" {
		t.Fatalf("unexpected region %q (%v)", region, ok)
	}
}

func TestComposeRejectsBrokenMarkers(t *testing.T) {
	testCases := []struct {
		name     string
		prior    string
		expected error
	}{
		{name: "missing", prior: "# Hand written README\n", expected: ErrMarkerMissing},
		{name: "missing_end", prior: StartMarker + "\nold\n", expected: ErrMarkerMissing},
		{name: "duplicated_start", prior: StartMarker + "\n" + StartMarker + "\n" + EndMarker, expected: ErrMarkerDuplicated},
		{name: "duplicated_end", prior: StartMarker + "\n" + EndMarker + "\n" + EndMarker, expected: ErrMarkerDuplicated},
		{name: "out_of_order", prior: EndMarker + "\nold\n" + StartMarker, expected: ErrMarkerOrder},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			composed, err := Compose(testCase.prior, "generated")
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
			var composeError *ComposeError
			if !errors.As(err, &composeError) {
				t.Fatalf("expected *ComposeError, got %T", err)
			}
			if composed != Wrap("generated") {
				t.Fatalf("generated content must still be returned, got %q", composed)
			}
		})
	}
}

func TestRenderEndsWithTimestamp(t *testing.T) {
	section := Section{
		Title:       "widget",
		Description: "github.com/acme/widget",
		Summary:     "Widget builds widgets. " + EndMarker,
		Components: []Component{
			{Name: "cmd", Text: "Entry points.", IsDir: true},
			{Name: "main.go", Text: "Starts the server."},
		},
		Degraded:    []string{".", "cmd"},
		Provenance:  "_Generated by recap._",
		GeneratedAt: fixedTime,
		Revision:    "main@1a2b3c4",
	}
	rendered := section.Render()
	lines := strings.Split(rendered, "\n")
	lastLine := lines[len(lines)-1]
	if lastLine != "_Last updated: 2026-03-04T05:06:07Z (main@1a2b3c4)_" {
		t.Fatalf("unexpected last line %q", lastLine)
	}
	if !strings.HasSuffix(rendered, "_Generated by recap._\n\n"+lastLine) {
		t.Fatalf("timestamp line must be a paragraph of its own:\n%s", rendered)
	}
	if strings.Contains(rendered, EndMarker) {
		t.Fatalf("markers must be stripped from summaries")
	}
	for _, fragment := range []string{"## widget", "#### `cmd/`", "#### `main.go`", "`project root`, `cmd`", "_Generated by recap._"} {
		if !strings.Contains(rendered, fragment) {
			t.Fatalf("rendered section lacks %q:\n%s", fragment, rendered)
		}
	}
	if strings.Index(rendered, "#### `cmd/`") > strings.Index(rendered, "#### `main.go`") {
		t.Fatalf("components out of order")
	}

	composed, err := Compose("", rendered)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if !strings.HasSuffix(composed, lastLine+"\n"+EndMarker+"\n") {
		t.Fatalf("timestamp must be the last line inside the region: %q", composed)
	}
}

func TestRenderWithoutRevisionOrComponents(t *testing.T) {
	rendered := Section{Summary: "", GeneratedAt: fixedTime}.Render()
	if !strings.HasPrefix(rendered, emptyProjectSummary) {
		t.Fatalf("expected placeholder summary, got %q", rendered)
	}
	if !strings.HasSuffix(rendered, "_Last updated: 2026-03-04T05:06:07Z_") {
		t.Fatalf("unexpected timestamp line in %q", rendered)
	}
	if strings.Contains(rendered, componentsHeading) {
		t.Fatalf("components heading rendered without components")
	}
}

func TestComponentsFrom(t *testing.T) {
	root := &types.AggregateNode{
		Path: ".",
		Kind: types.NodeKindDirectory,
		Children: []*types.AggregateNode{
			{Path: "internal", Name: "internal", Kind: types.NodeKindDirectory, Text: "Internals.", Degraded: true},
			{Path: "go.mod", Name: "go.mod", Kind: types.NodeKindFile, Text: "Module file."},
		},
	}
	components := ComponentsFrom(root)
	if len(components) != 2 || !components[0].IsDir || !components[0].Degraded || components[1].IsDir {
		t.Fatalf("unexpected components %+v", components)
	}
	if ComponentsFrom(nil) != nil {
		t.Fatalf("nil root yields no components")
	}
}

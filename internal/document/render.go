package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

const (
	titleFormat            = "## %s"
	descriptionFormat      = "_%s_"
	componentsHeading      = "### Components"
	componentFormat        = "#### `%s`"
	directorySuffix        = "/"
	degradedNoteFormat     = "> **Note:** %d section(s) could not be summarized and show placeholders: %s."
	degradedPathFormat     = "`%s`"
	degradedPathSeparator  = ", "
	projectRootLabel       = "project root"
	timestampFormat        = "_Last updated: %s_"
	timestampRevisionFmt   = "_Last updated: %s (%s)_"
	paragraphSeparator     = "\n\n"
	rootAggregatePath      = "."
	emptyProjectSummary    = "_No summary available._"
	defaultProvenanceLabel = "_Auto-generated summary. Edit outside the generated markers; this section is replaced on every run._"
)

// Component is one top-level entry of the project.
type Component struct {
	Name     string
	Text     string
	IsDir    bool
	Degraded bool
}

// Section is the content of the generated region.
type Section struct {
	Title       string
	Description string
	Summary     string
	Components  []Component
	Degraded    []string
	Provenance  string
	GeneratedAt time.Time
	Revision    string
}

// ComponentsFrom lists the summarized top-level children of root in walk order.
func ComponentsFrom(root *types.AggregateNode) []Component {
	if root == nil {
		return nil
	}
	components := make([]Component, 0, len(root.Children))
	for _, child := range root.Children {
		components = append(components, Component{
			Name:     child.Name,
			Text:     child.Text,
			IsDir:    child.IsDirectory(),
			Degraded: child.Degraded,
		})
	}
	return components
}

// Render returns the generated region without markers. The timestamp line is
// always the last line.
func (section Section) Render() string {
	var blocks []string
	if title := strings.TrimSpace(section.Title); title != "" {
		blocks = append(blocks, fmt.Sprintf(titleFormat, title))
	}
	if description := strings.TrimSpace(section.Description); description != "" {
		blocks = append(blocks, fmt.Sprintf(descriptionFormat, description))
	}
	summary := strings.TrimSpace(stripMarkers(section.Summary))
	if summary == "" {
		summary = emptyProjectSummary
	}
	blocks = append(blocks, summary)

	if len(section.Components) > 0 {
		blocks = append(blocks, componentsHeading)
		for _, component := range section.Components {
			name := component.Name
			if component.IsDir {
				name += directorySuffix
			}
			blocks = append(blocks, fmt.Sprintf(componentFormat, name), strings.TrimSpace(stripMarkers(component.Text)))
		}
	}

	if len(section.Degraded) > 0 {
		labels := make([]string, len(section.Degraded))
		for index, degradedPath := range section.Degraded {
			if degradedPath == rootAggregatePath {
				degradedPath = projectRootLabel
			}
			labels[index] = fmt.Sprintf(degradedPathFormat, degradedPath)
		}
		blocks = append(blocks, fmt.Sprintf(degradedNoteFormat, len(section.Degraded), strings.Join(labels, degradedPathSeparator)))
	}

	provenance := strings.TrimSpace(section.Provenance)
	if provenance == "" {
		provenance = defaultProvenanceLabel
	}
	blocks = append(blocks, provenance, section.timestampLine())
	return strings.Join(blocks, paragraphSeparator)
}

func (section Section) timestampLine() string {
	generatedAt := section.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	stamp := utils.FormatTimestamp(generatedAt)
	if section.Revision == "" {
		return fmt.Sprintf(timestampFormat, stamp)
	}
	return fmt.Sprintf(timestampRevisionFmt, stamp, section.Revision)
}

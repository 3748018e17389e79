package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of the node tree rooted at root.
// It applies semantic styling:
// - Container: [[Subroutine]]
// - Template: [/Parallelogram/], annotated with its source kinds
// - Test: [Rectangle]
// Extensions declared on a node are listed under its name. When report is given, nodes
// are classed by their outcome.
func GenerateMermaid(root *domain.Node, report *domain.Report) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if root == nil {
		return sb.String()
	}

	_ = domain.Walk(root, func(n *domain.Node) error {
		safeID := sanitizeMermaidID(n.ID)

		opener, closer := "[", "]"
		switch n.Kind {
		case domain.KindContainer:
			opener, closer = "[[", "]]"
		case domain.KindTemplate:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label(n), closer)

		if parent := n.Parent(); parent != nil {
			fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(parent.ID), safeID)
		}
		return nil
	})

	if report != nil && report.Root != nil {
		sb.WriteString("\n    %% Outcome Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef successful fill:#dcfce7,stroke:#15803d,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#b91c1c,stroke-width:3px,color:#000;\n")
		sb.WriteString("    classDef aborted fill:#fef3c7,stroke:#b45309,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef skipped fill:#f3f4f6,stroke:#9ca3af,stroke-dasharray:4,color:#000;\n")
		classify(&sb, report.Root)
	}

	return sb.String()
}

func label(n *domain.Node) string {
	parts := []string{escape(n.Name())}
	if n.Kind == domain.KindTemplate && n.Template != nil && len(n.Template.Sources) > 0 {
		kinds := make([]string, len(n.Template.Sources))
		for i, src := range n.Template.Sources {
			kinds[i] = src.Kind
		}
		parts = append(parts, "⟳ "+strings.Join(kinds, ", "))
	}
	if len(n.Extensions) > 0 {
		parts = append(parts, "<small>"+escape(strings.Join(n.Extensions, ", "))+"</small>")
	}
	return strings.Join(parts, " <br/> ")
}

// classify styles a node by its outcome. A template with a failed invocation counts as
// failed.
func classify(sb *strings.Builder, res *domain.Result) {
	status := res.Status
	for _, inv := range res.Invocations {
		if inv.Status == domain.StateFailed {
			status = domain.StateFailed
			break
		}
	}
	switch status {
	case domain.StateSuccessful, domain.StateFailed, domain.StateAborted, domain.StateSkipped:
		fmt.Fprintf(sb, "    class %s %s;\n", sanitizeMermaidID(res.NodeID), status)
	}
	for _, c := range res.Children {
		classify(sb, c)
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "#", "_")
	return strings.ReplaceAll(s, " ", "_")
}

package mcpclient

import (
	"encoding/json"
	"fmt"

	"github.com/germanamz/toolplex/pkg/tools/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// fromSDKTool converts an SDK *mcp.Tool to a session.Capability.
func fromSDKTool(sdkTool *mcp.Tool) (session.Capability, error) {
	var schema json.RawMessage
	if sdkTool.InputSchema != nil {
		b, err := json.Marshal(sdkTool.InputSchema)
		if err != nil {
			return session.Capability{}, fmt.Errorf("marshal input schema: %w", err)
		}
		schema = b
	}

	return session.Capability{
		Name:        sdkTool.Name,
		Description: sdkTool.Description,
		InputSchema: schema,
	}, nil
}

// fromSDKResult converts every content block the SDK knows about. Unknown
// block types are rendered as their JSON encoding.
func fromSDKResult(result *mcp.CallToolResult) *session.Result {
	out := &session.Result{
		Content: make([]session.Content, 0, len(result.Content)),
		IsError: result.IsError,
	}

	for _, item := range result.Content {
		out.Content = append(out.Content, fromSDKContent(item))
	}

	return out
}

func fromSDKContent(item mcp.Content) session.Content {
	switch c := item.(type) {
	case *mcp.TextContent:
		return session.Content{Type: session.ContentText, Text: c.Text}
	case *mcp.ImageContent:
		return session.Content{Type: session.ContentImage, Data: c.Data, MIMEType: c.MIMEType}
	case *mcp.AudioContent:
		return session.Content{Type: session.ContentAudio, Data: c.Data, MIMEType: c.MIMEType}
	case *mcp.ResourceLink:
		return session.Content{Type: session.ContentLink, URI: c.URI, MIMEType: c.MIMEType, Text: c.Name}
	case *mcp.EmbeddedResource:
		if c.Resource == nil {
			return session.Content{Type: session.ContentResource}
		}
		return session.Content{
			Type:     session.ContentResource,
			URI:      c.Resource.URI,
			MIMEType: c.Resource.MIMEType,
			Text:     c.Resource.Text,
			Data:     c.Resource.Blob,
		}
	default:
		b, err := json.Marshal(item)
		if err != nil {
			return session.Content{Type: session.ContentText, Text: fmt.Sprintf("(unrenderable content: %v)", err)}
		}
		return session.Content{Type: session.ContentText, Text: string(b)}
	}
}

// ToSDKResult converts a session.Result back into the SDK representation.
func ToSDKResult(r *session.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{
		Content: make([]mcp.Content, 0, len(r.Content)),
		IsError: r.IsError,
	}

	for _, c := range r.Content {
		switch c.Type {
		case session.ContentImage:
			out.Content = append(out.Content, &mcp.ImageContent{Data: c.Data, MIMEType: c.MIMEType})
		case session.ContentAudio:
			out.Content = append(out.Content, &mcp.AudioContent{Data: c.Data, MIMEType: c.MIMEType})
		case session.ContentLink:
			out.Content = append(out.Content, &mcp.ResourceLink{URI: c.URI, Name: c.Text, MIMEType: c.MIMEType})
		case session.ContentResource:
			out.Content = append(out.Content, &mcp.EmbeddedResource{Resource: &mcp.ResourceContents{
				URI:      c.URI,
				MIMEType: c.MIMEType,
				Text:     c.Text,
				Blob:     c.Data,
			}})
		default:
			out.Content = append(out.Content, &mcp.TextContent{Text: c.Text})
		}
	}

	return out
}

package notion

import "sort"

const untitled = "Untitled"

var preferredTitleKeys = []string{"Name", "Title", "name", "title"}

// ExtractTitle picks the page title from its properties. Pages created in
// the workspace carry a single title-typed property, usually "Name" or
// "Title", but databases may rename it.
func ExtractTitle(props map[string]wireProperty) string {
	for _, key := range preferredTitleKeys {
		if p, ok := props[key]; ok && p.Type == "title" {
			if t := titleText(p); t != "" {
				return t
			}
		}
	}

	keys := make([]string, 0, len(props))
	for k, p := range props {
		if p.Type == "title" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t := titleText(props[k]); t != "" {
			return t
		}
	}
	return untitled
}

func titleText(p wireProperty) string {
	var s string
	for _, rt := range p.Title {
		if rt.PlainText != "" {
			s += rt.PlainText
		} else if rt.Text != nil {
			s += rt.Text.Content
		}
	}
	return s
}

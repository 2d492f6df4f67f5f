package main

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/jennahamlin/mashwrapper/cmd"
	"github.com/spf13/cobra/doc"
)

// https://pmarsceill.github.io/just-the-docs/docs/navigation-structure/
const rootPage = `---
layout: default
title: %s
nav_order: %d
has_children: true
permalink: /
---
`

// child command without children
const childPage = `---
layout: default
title: %s
parent: %s
nav_order: %d
---
`

// child with children
const childParentPage = `---
layout: default
title: %s
parent: %s
nav_order: %d
has_children: true
---
`

// grandchildren
const grandchildPage = `---
layout: default
title: %s
parent: %s
grand_parent: %s
nav_order: %d
---
`

// docType codes whether the command is a grandchild, child, etc
type docType int

const (
	root docType = iota
	child
	childParent
	grandchild
)

// meta is for describing the position/info for a command doc page
type meta struct {
	docType     docType
	title       string
	navOrder    int
	parent      string
	grandParent string
}

// map from the base Markdown file name to its build meta
var metaMap = map[string]meta{
	"mashwrapper": {
		docType:  root,
		title:    "mashwrapper",
		navOrder: 0,
	},
	"mashwrapper_curate": {
		docType:  child,
		title:    "curate",
		navOrder: 0,
		parent:   "mashwrapper",
	},
	"mashwrapper_check": {
		docType:  child,
		title:    "check",
		navOrder: 1,
		parent:   "mashwrapper",
	},
	"mashwrapper_sketch": {
		docType:  childParent,
		title:    "sketch",
		navOrder: 2,
		parent:   "mashwrapper",
	},
	"mashwrapper_sketch_build": {
		docType:     grandchild,
		title:       "build",
		navOrder:    0,
		parent:      "sketch",
		grandParent: "mashwrapper",
	},
	"mashwrapper_sketch_merge": {
		docType:     grandchild,
		title:       "merge",
		navOrder:    1,
		parent:      "sketch",
		grandParent: "mashwrapper",
	},
	"mashwrapper_identify": {
		docType:  child,
		title:    "identify",
		navOrder: 3,
		parent:   "mashwrapper",
	},
	"mashwrapper_collate": {
		docType:  child,
		title:    "collate",
		navOrder: 4,
		parent:   "mashwrapper",
	},
}

// makeDocs parses the custom commands and outputs Markdown documentation files
func makeDocs() {
	if err := doc.GenMarkdownTreeCustom(cmd.RootCmd, "./docs", filePrepender, linkHandler); err != nil {
		fmt.Println(err.Error())
	}
}

// filePrepender adds YAML headings that are required by the just-the-docs theme
// https://github.com/spf13/cobra/blob/master/doc/md_docs.md
func filePrepender(filename string) string {
	name := filepath.Base(filename)
	base := strings.TrimSuffix(name, path.Ext(name))
	m := metaMap[base]

	switch m.docType {
	case root:
		return fmt.Sprintf(rootPage, m.title, m.navOrder)
	case child:
		return fmt.Sprintf(childPage, m.title, m.parent, m.navOrder)
	case childParent:
		return fmt.Sprintf(childParentPage, m.title, m.parent, m.navOrder)
	case grandchild:
		return fmt.Sprintf(grandchildPage, m.title, m.parent, m.grandParent, m.navOrder)
	}

	return ""
}

// linkHandler returns the URL to a documentation page
func linkHandler(filename string) string {
	name := filepath.Base(filename)
	base := strings.TrimSuffix(name, path.Ext(name))

	if base == "mashwrapper" {
		return "/"
	}
	return base
}

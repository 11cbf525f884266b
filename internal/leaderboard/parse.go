package leaderboard

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"jotihunt/internal/domain"
)

var (
	rowContainerClasses = []string{"divide-y", "divide-gray-200", "bg-white"}
	cellClasses         = []string{"whitespace-nowrap", "px-3", "py-4", "text-sm", "text-gray-500"}
	leaderIconClasses   = []string{"h-6", "w-6", "inline", "text-green-500"}
)

// Parse extracts leaderboard rows from the public score page.
//
// Rows live in tbody elements carrying the divide-y/divide-gray-200/bg-white
// classes. A row whose previous sibling holds a th starts a new area; the
// area counts as led by us when that header carries the green check icon.
// Only rows with exactly three score cells (position, group, points) count.
func Parse(r io.Reader) ([]domain.LeaderboardEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var entries []domain.LeaderboardEntry
	for _, body := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Tbody && hasClasses(n, rowContainerClasses)
	}) {
		var (
			area         string
			areaPosition = 1
			areaLeader   bool
		)
		for row := body.FirstChild; row != nil; row = row.NextSibling {
			if row.Type != html.ElementNode || row.DataAtom != atom.Tr {
				continue
			}

			if prev := prevElement(row); prev != nil {
				if headers := findAll(prev, isElement(atom.Th)); len(headers) > 0 {
					area = textOf(headers...)
					areaPosition = 1
					areaLeader = false
					for _, th := range headers {
						if len(findAll(th, isLeaderIcon)) > 0 {
							areaLeader = true
						}
					}
				}
			}

			cells := findAll(row, func(n *html.Node) bool {
				return n.DataAtom == atom.Td && hasClasses(n, cellClasses)
			})
			if len(cells) != 3 {
				continue
			}

			entries = append(entries, domain.LeaderboardEntry{
				Position:     leadingInt(textOf(cells[0])),
				GroupName:    textOf(cells[1]),
				Points:       leadingInt(textOf(cells[2])),
				Area:         area,
				AreaPosition: areaPosition,
				IsAreaLeader: areaLeader,
			})
			areaPosition++
		}
	}
	return entries, nil
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

func isLeaderIcon(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "svg" || !hasClasses(n, leaderIconClasses) {
		return false
	}
	// Foreign content keeps attribute names as written, so compare loosely.
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "viewBox") {
			return a.Val == "0 0 24 24"
		}
	}
	return false
}

// findAll returns the descendants of root (root excluded) that match.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func prevElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func hasClasses(n *html.Node, want []string) bool {
	var class string
	for _, a := range n.Attr {
		if a.Key == "class" {
			class = a.Val
			break
		}
	}
	have := strings.Fields(class)
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func textOf(nodes ...*html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.TrimSpace(sb.String())
}

// leadingInt parses the leading decimal digits of s, ignoring what follows.
// Text without leading digits yields 0.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		return -n
	}
	return n
}

// Package color holds the terminal styles mcptape uses for its tables and
// verdicts.
//
// Styles are built on lipgloss adaptive colors, so the same palette reads
// well on dark and light terminals. Color output is dropped automatically
// when stdout is not a terminal or NO_COLOR is set.
//
// # Usage Example
//
//	color.Initialize(true)
//	fmt.Println(color.PassStyle.Render("PASS"))
//	fmt.Println(color.Verdict("FAIL"))
package color

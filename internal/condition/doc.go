// Package condition evaluates the IF clause of a rule.
//
// The expression language is small: numbers, quoted text, fact references,
// comparison (= != <> < <= > >=), arithmetic (+ - * /), the connectives of
// the rule grammar (И/ИЛИ/НЕ, and/or/not, any case) and parentheses.
//
// A reference written with the literal marker ($L.D) reads the primary
// pool; a bare reference (L.D) reads the reference pool. A number is true
// when non-zero and text is true when non-empty.
package condition

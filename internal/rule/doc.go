// Package rule parses rule text.
//
// A rule has the fixed two-clause form
//
//	ЕСЛИ <condition> ТО <action>;
//
// and its action is one of
//
//	НАЙТИ_В_БД(<predicate>)
//	НАЙТИ_В_БД(<predicate>\\<reference><+|->\\)
//	ДОБАВИТЬ_В_БД(<prefix>)
//	УДАЛИТЬ_В_БД(<prefix>)
//
// Keyword spellings come from a Keywords table compiled into a Grammar;
// Default uses the spellings above. The condition is handed to the
// condition evaluator verbatim; only action parameters are rewritten later
// by the subst package.
package rule

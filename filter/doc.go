// Package filter parses and evaluates row filter expressions.
//
// Expressions use a small SQL subset:
//
//	type = 'fruit'
//	price >= 1.5 AND NOT (type IN ('vegetable', 'herb'))
//	text LIKE '%apple%' OR id BETWEEN 10 AND 20
//	note IS NOT NULL
//
// Comparisons against a missing or null column are unknown, and unknown
// never matches, also under NOT.
package filter

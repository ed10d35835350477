// Package feed implements the source contracts over generic JSON HTTP feeds.
//
// Each feed is configured with a base URL and a path and speaks one of three
// envelopes:
//
//	news:   {"items":[{"id","url","headline","summary","published_at","source","kind","symbols":[{"symbol","important"}]}]}
//	prices: {"quotes":[{"symbol","price","volume","timestamp","session"}]}
//	social: {"posts":[{"id","symbol","community","title","published_at","content"}]}
//
// A missing or malformed envelope fails the fetch with a source.StructuralError.
// A malformed item is logged and skipped.
package feed

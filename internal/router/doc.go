// Package router sorts fetched results into the buckets the store writes.
//
// News is split into macro and company buckets by each article's kind, which
// defaults to the kind of the source's stream. Article URLs are normalized
// here; an article whose URL cannot be normalized becomes a
// source.ItemParseError and is dropped. Duplicate articles within one fetch
// are merged and symbol links are normalized and de-duplicated.
package router

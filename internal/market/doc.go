// Package market maintains the symbol universe the poller works on: the
// configured symbols plus, optionally, every symbol in the holdings table.
package market

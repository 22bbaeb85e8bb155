// Package fetcher retrieves documents for the crawler.
//
// Every failure is reported as a *FetchError whose Kind tells the retry
// policy what happened: a timeout, a network failure, an HTTP error status,
// or a URL that cannot be requested. FetchError implements retry.Retryable,
// so the policy never needs to know about HTTP.
//
// Design decision: Proxy rotation is a strategy (ProxyRotator) rather than a
// proxy pool manager. Acquiring and scoring proxies is left to whoever writes
// the configuration; RoundRobin simply cycles through the list it is given.
package fetcher

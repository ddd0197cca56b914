// Package policy evaluates pre-flight business rules for custodial transfers
// using an embedded OPA instance. Rules run before a transfer reaches the
// provider; provider-side policy decisions (rejections, pending
// authorizations) are classified separately by the custody error mapper.
package policy

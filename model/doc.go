// Package model defines the provider-neutral chat abstraction used by the
// advisor: a Request of role-tagged messages plus tool definitions, answered
// by a Response carrying either final text or tool call requests. Concrete
// adapters live in the openai and anthropic sub-packages; MockModel provides
// a scriptable implementation for tests.
package model

/*
Package test provides testing utilities for the system-design-library.

This package includes:
  - Suite: Base test suite with context and testify integration

It has no Postgres or Redis helpers for integration testing.

Usage:

	import "github.com/relaymesh/workcoordinator/pkg/test"

	type MyTestSuite struct {
		test.Suite
	}

	func (s *MyTestSuite) TestSomething() {
		s.NoError(doSomething(s.Ctx))
	}

	func TestMySuite(t *testing.T) {
		test.Run(t, new(MyTestSuite))
	}
*/
package test

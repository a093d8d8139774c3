// Package matching decides whether a request satisfies a request pattern.
//
// Every field the pattern leaves unset is a wildcard. Set fields are
// compared as follows:
//
//   - Method and path: equal, or a full match of the pattern as a regular expression
//   - Headers, query parameters and cookies: the request must carry every
//     entry of the pattern; values compare like the path
//   - Keep-alive and secure flags: equal
//   - Body: by body type (string, regex, JSON, JSONPath, XPath, JSON schema, binary)
//
// A pattern that cannot be evaluated, such as a malformed regex body or an
// invalid schema, yields an error rather than a mismatch.
package matching

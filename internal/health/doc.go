// Package health provides composable checks and the handlers behind the
// /-/healthy and /-/ready endpoints.
//
// Checkers combine with [All] and [Any]; [Fixed] and [CheckFunc] build simple
// ones. [ShutdownGate] fails readiness as soon as shutdown begins so load
// balancers stop routing new requests while in-flight ones drain.
package health

// Package dispatch coordinates the de-identification run.
//
// The dispatcher enumerates the input tree once, then fans the files out to a
// fixed pool of workers that read, transform, and write records in parallel.
// Link-log allocation and space admission are owned by a single allocator
// goroutine that workers message; it processes requests strictly in
// enumeration order, so identifier assignment depends only on the file set,
// never on worker scheduling.
//
// A run ends in one of three terminal outcomes: Completed, HaltedOnSpace
// (budget rejection; in-flight writes finish, nothing new is admitted, the
// run can be resumed later), or FailedFatal (link-log corruption or
// inconsistency; processing stops immediately).
package dispatch

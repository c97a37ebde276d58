/*
Package pincpus restricts all threads of the calling process to the first N
logical CPUs, and supports working with the CPU lists and sets involved.

[PinApp] walks the process's task listing in “/proc/self/task” and applies a
CPU [Set] covering CPUs 0 to N-1 to each task it finds. Tasks that terminate
while the listing is being walked are silently skipped; tasks that get created
after the walk started are not pinned.

  - [Set] stores CPU numbers as bits in a bytestream, such as (hex) ff1e,
    mirroring the affinity masks of sched_setaffinity(2).
  - [List] stores CPU numbers as ranges, such as 0-3,8, mirroring the textual
    lists found in procfs and sysfs.

Errors returned by [PinApp] map onto one of the [Result] codes; use [Code] to
get the numeric code for callers that expect it.
*/
package pincpus

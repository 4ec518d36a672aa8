// Package script compiles a small YAML module format into module records.
//
// A script declares its imports, exports and top-level bindings, and lists
// body steps that run against the record's environment when the module is
// evaluated:
//
//	imports:
//	  - from: ./dep
//	    names: [x, "default as d"]
//	exports:
//	  - a
//	  - from: ./other
//	    star: true
//	declare:
//	  let: [a]
//	  function:
//	    f: {returns: a}
//	async: true
//	body:
//	  - init: {a: 1}
//	  - await: tick
//	  - log: "a is {a}"
//
// Steps:
//
//	set:    {name: value, ...}    assign existing bindings
//	init:   {name: value, ...}    initialize lexical bindings
//	copy:   {from: x, to: y}      read one binding into another
//	read:   name                  read a binding, failing in its dead zone
//	log:    "text {name}"         emit a trace line, interpolating bindings
//	throw:  message               fail the module body
//	await:  tick | never          suspend (async modules only)
//	import: {from: ./dep, into: name, with: {type: json}}
//	call:   {fn: name, args: [...], into: name}
//
// In an async module an import step suspends until the dynamic import
// settles. In a synchronous module it starts the import and assigns the
// namespace from a reaction, without suspending the body.
package script

/*

Process of compilation

Shader Text ->
	parse (input) ->
Instruction Stream (input.Program) ->
	build (convert) ->
Control-Flow Graph (cfg.Func per called label) ->
	predecessors, block merging, codegen (later stages)

*/
package compiler

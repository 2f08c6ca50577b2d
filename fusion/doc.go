// Package fusion merges adjacent innermost loops of an ir function.
//
// Two loops L1 and L2, L1 preceding L2, are fused when they are adjacent in
// the CFG, run the same exact number of iterations, are control flow
// equivalent and no memory dependence between them has a negative distance.
// The body of L2 then runs inside L1, after L1's body, under L1's induction
// variable and latch.
//
// All analyses of a function are held by an Analysis, which is recomputed
// after every fusion:
//
//	a := fusion.New(fn, fusion.WithLogger(logger))
//	if fusion.Run(a) {
//		fmt.Println(a.Result().Fusions, "loops fused")
//	}
package fusion

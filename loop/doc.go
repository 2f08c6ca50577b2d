// Package loop provides utilities for loop representation and detection.
//
// Loop detection works on the dominator tree: an edge b → h where h dominates
// b is a back edge, and the natural loop of h is h together with every block
// reaching a back edge source without passing through h. Back edges sharing a
// header form one loop. Loops are nested by block containment into a Forest.
//
// Combining the loop shape with the header phis, the canonical induction
// variable (start 0, step 1) is extracted if possible. Simplify splits edges
// so that loops have a dedicated latch, dedicated exits and a preheader.
package loop

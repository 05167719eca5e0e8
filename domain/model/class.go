package model

// Class groups parameters that share a role and a default prior
type Class string

const (
	ClassB         Class = "b"
	ClassIntercept Class = "Intercept"
	ClassSD        Class = "sd"
	ClassCor       Class = "cor"
	ClassSigma     Class = "sigma"
	ClassNu        Class = "nu"
	ClassShape     Class = "shape"
	ClassPhi       Class = "phi"
	ClassDelta     Class = "delta"
	// ClassR holds group-level effects; their prior is implied by sd and cor.
	ClassR Class = "r"
)

var priorClasses = map[Class]bool{
	ClassB: true, ClassIntercept: true, ClassSD: true, ClassCor: true,
	ClassSigma: true, ClassNu: true, ClassShape: true, ClassPhi: true, ClassDelta: true,
}

// IsPriorClass reports whether priors may be placed on the class
func IsPriorClass(c Class) bool {
	return priorClasses[c]
}

// PriorClasses lists classes accepting priors
func PriorClasses() []Class {
	return []Class{ClassB, ClassIntercept, ClassSD, ClassCor, ClassSigma, ClassNu, ClassShape, ClassPhi, ClassDelta}
}

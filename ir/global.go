package ir

// GlobalValue is a module-level symbol: a function, variable or alias.
type GlobalValue interface {
	Value
	Parent() *Module
	Linkage() Linkage
	SetLinkage(Linkage)
	IsDeclaration() bool
}

var (
	_ GlobalValue = (*Function)(nil)
	_ GlobalValue = (*GlobalVariable)(nil)
	_ GlobalValue = (*Alias)(nil)
)

// GlobalVariable is a module-level variable. Its Type is a pointer to the
// stored value type.
type GlobalVariable struct {
	valueBase
	module    *Module
	valueType *Type
	init      *Constant
	linkage   Linkage
	constant  bool
}

func (g *GlobalVariable) check(op string) {
	g.module.check(op)
}

func (g *GlobalVariable) Parent() *Module {
	g.check("global parent")
	return g.module
}

func (g *GlobalVariable) SetName(name string) {
	g.module.checkMutable("rename")
	g.name = g.module.rename(g, g.name, name)
}

// ValueType is the type of the stored value.
func (g *GlobalVariable) ValueType() *Type {
	g.check("global type")
	return g.valueType
}

func (g *GlobalVariable) Linkage() Linkage {
	g.check("linkage")
	return g.linkage
}

func (g *GlobalVariable) SetLinkage(l Linkage) {
	g.module.checkMutable("linkage")
	g.linkage = l
}

// Initializer returns nil for an external declaration.
func (g *GlobalVariable) Initializer() *Constant {
	g.check("initializer")
	return g.init
}

func (g *GlobalVariable) SetInitializer(k *Constant) {
	g.module.checkMutable("initializer")
	g.init = k
}

// IsConstant reports a variable that is never written.
func (g *GlobalVariable) IsConstant() bool {
	g.check("constant")
	return g.constant
}

func (g *GlobalVariable) SetConstant(constant bool) {
	g.module.checkMutable("constant")
	g.constant = constant
}

func (g *GlobalVariable) IsDeclaration() bool {
	g.check("declaration")
	return g.init == nil
}

// Delete removes the variable from its module.
func (g *GlobalVariable) Delete() {
	g.module.checkMutable("delete")
	g.module.removeGlobal(g)
}

func (g *GlobalVariable) String() string {
	g.check("print")
	return printGlobal(g)
}

// Alias is a second name for another global value.
type Alias struct {
	valueBase
	module  *Module
	aliasee GlobalValue
	linkage Linkage
}

func (a *Alias) check(op string) {
	a.module.check(op)
}

func (a *Alias) Parent() *Module {
	a.check("alias parent")
	return a.module
}

func (a *Alias) SetName(name string) {
	a.module.checkMutable("rename")
	a.name = a.module.rename(a, a.name, name)
}

func (a *Alias) Aliasee() GlobalValue {
	a.check("aliasee")
	return a.aliasee
}

func (a *Alias) SetAliasee(gv GlobalValue) {
	a.module.checkMutable("aliasee")
	a.aliasee = gv
	a.typ = gv.Type()
}

func (a *Alias) Linkage() Linkage {
	a.check("linkage")
	return a.linkage
}

func (a *Alias) SetLinkage(l Linkage) {
	a.module.checkMutable("linkage")
	a.linkage = l
}

func (a *Alias) IsDeclaration() bool {
	return false
}

func (a *Alias) Delete() {
	a.module.checkMutable("delete")
	a.module.removeAlias(a)
}

func (a *Alias) String() string {
	a.check("print")
	return printAlias(a)
}
